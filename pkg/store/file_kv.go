package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const stateFileName = "state.json"

// fileDoc is the on-disk layout. Origin identifies the last writer so that
// watchers can drop their own writes.
type fileDoc struct {
	Origin string            `json:"origin"`
	Values map[string]string `json:"values"`
}

// FileKV is the persistent tier backed by a single JSON file. Several
// processes may share the same directory; writes are last-write-wins.
type FileKV struct {
	dir    string
	path   string
	origin string

	mu       sync.Mutex
	snapshot map[string]string
	subs     map[*fileSub]struct{}
}

type fileSub struct {
	queue  []Change
	signal chan struct{}
}

// NewFileKV creates the base directory if missing.
func NewFileKV(dir string) (*FileKV, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileKV{
		dir:    dir,
		path:   filepath.Join(dir, stateFileName),
		origin: newOrigin(),
		subs:   make(map[*fileSub]struct{}),
	}, nil
}

// Path returns the state file location.
func (f *FileKV) Path() string {
	return f.path
}

// Origin returns the writer id stamped on this instance's writes.
func (f *FileKV) Origin() string {
	return f.origin
}

func (f *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	doc, err := f.readDoc()
	if err != nil {
		return "", false, err
	}
	v, ok := doc.Values[key]
	return v, ok, nil
}

func (f *FileKV) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.readDoc()
	if err != nil {
		return err
	}
	f.observeLocked(doc)
	doc.Values[key] = value
	return f.writeLocked(doc)
}

func (f *FileKV) Remove(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.readDoc()
	if err != nil {
		return err
	}
	f.observeLocked(doc)
	changed := false
	for _, k := range keys {
		if _, ok := doc.Values[k]; ok {
			delete(doc.Values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.writeLocked(doc)
}

// Watch reports changes written by other FileKV instances on the same directory.
func (f *FileKV) Watch(ctx context.Context) (<-chan Change, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(f.dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch state dir: %w", err)
	}

	sub := &fileSub{signal: make(chan struct{}, 1)}
	f.mu.Lock()
	if f.snapshot == nil {
		doc, err := f.readDoc()
		if err != nil {
			f.mu.Unlock()
			_ = w.Close()
			return nil, err
		}
		f.snapshot = doc.Values
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	out := make(chan Change)
	go f.deliver(ctx, sub, out)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(f.path) {
					continue
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				f.mu.Lock()
				if doc, err := f.readDoc(); err == nil {
					f.observeLocked(doc)
				}
				f.mu.Unlock()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *FileKV) deliver(ctx context.Context, sub *fileSub, out chan<- Change) {
	defer close(out)
	defer func() {
		f.mu.Lock()
		delete(f.subs, sub)
		f.mu.Unlock()
	}()
	for {
		f.mu.Lock()
		var next *Change
		if len(sub.queue) > 0 {
			c := sub.queue[0]
			sub.queue = sub.queue[1:]
			next = &c
		}
		f.mu.Unlock()

		if next == nil {
			select {
			case <-ctx.Done():
				return
			case <-sub.signal:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case out <- *next:
		}
	}
}

// observeLocked diffs doc against the last seen snapshot and queues changes
// for subscribers unless the document was written by this instance.
func (f *FileKV) observeLocked(doc fileDoc) {
	if len(f.subs) == 0 {
		f.snapshot = nil
		return
	}
	prev := f.snapshot
	if prev == nil {
		prev = map[string]string{}
	}
	f.snapshot = copyValues(doc.Values)
	if doc.Origin == f.origin {
		return
	}

	var changes []Change
	for k, nv := range doc.Values {
		if ov := prev[k]; ov != nv {
			changes = append(changes, Change{Key: k, OldValue: ov, NewValue: nv, Origin: doc.Origin})
		}
	}
	for k, ov := range prev {
		if _, ok := doc.Values[k]; !ok {
			changes = append(changes, Change{Key: k, OldValue: ov, Origin: doc.Origin})
		}
	}
	if len(changes) == 0 {
		return
	}
	for sub := range f.subs {
		sub.queue = append(sub.queue, changes...)
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

func (f *FileKV) readDoc() (fileDoc, error) {
	doc := fileDoc{Values: make(map[string]string)}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read state: %w", err)
	}
	// A corrupt file reads as empty and is replaced by the next write.
	if err := json.Unmarshal(data, &doc); err != nil || doc.Values == nil {
		return fileDoc{Values: make(map[string]string)}, nil
	}
	return doc, nil
}

func (f *FileKV) writeLocked(doc fileDoc) error {
	doc.Origin = f.origin
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state: %w", err)
	}
	if f.snapshot != nil || len(f.subs) > 0 {
		f.snapshot = copyValues(doc.Values)
	}
	return nil
}

func copyValues(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
