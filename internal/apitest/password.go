package apitest

import "golang.org/x/crypto/bcrypt"

// Fixture users are created per test, so the cheapest cost keeps suites fast.
const passwordCost = bcrypt.MinCost

func hashPassword(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

func checkPassword(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}
