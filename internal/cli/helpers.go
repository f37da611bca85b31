package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"libraryclient/pkg/domain"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printBooks(w io.Writer, books []domain.Book) {
	if len(books) == 0 {
		fmt.Fprintln(w, "No books found.")
		return
	}
	fmt.Fprintf(w, "%-6s  %-40s  %-24s  %s\n", "ID", "TITLE", "AUTHOR", "CATEGORY")
	fmt.Fprintf(w, "%-6s  %-40s  %-24s  %s\n", "--", "-----", "------", "--------")
	for _, b := range books {
		category := ""
		if b.Category != nil {
			category = b.Category.Name
		}
		fmt.Fprintf(w, "%-6d  %-40s  %-24s  %s\n", b.ID, truncate(b.Title, 40), truncate(b.Author, 24), category)
	}
}

func printUsers(w io.Writer, users []domain.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users found.")
		return
	}
	fmt.Fprintf(w, "%-6s  %-32s  %-24s  %s\n", "ID", "EMAIL", "NAME", "ROLE")
	fmt.Fprintf(w, "%-6s  %-32s  %-24s  %s\n", "--", "-----", "----", "----")
	for _, u := range users {
		fmt.Fprintf(w, "%-6d  %-32s  %-24s  %s\n", u.ID, truncate(u.Email, 32), truncate(u.Name, 24), u.Role)
	}
}

func printReviews(w io.Writer, reviews []domain.Review) {
	if len(reviews) == 0 {
		fmt.Fprintln(w, "No reviews yet.")
		return
	}
	for _, r := range reviews {
		who := ""
		if r.User != nil {
			who = r.User.DisplayName()
		}
		if r.Book != nil {
			who = strings.TrimSpace(who + " on " + r.Book.Title)
		}
		fmt.Fprintf(w, "#%d  %s  %s\n", r.ID, stars(r.Rating), who)
		if strings.TrimSpace(r.Content) != "" {
			fmt.Fprintf(w, "    %s\n", r.Content)
		}
	}
}

func stars(rating int) string {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	return strings.Repeat("*", rating) + strings.Repeat(".", 5-rating)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}

// plainText flattens descriptions that carry markup, such as those imported
// from EPUB metadata, into a single line of text.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(buf.String()), " ")
}
