package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"atelier/internal/kvstore"
	"atelier/internal/services"
)

const (
	namespace = "credentials"
	keyName   = "api_key"
)

// ErrNotInteractive is returned when a prompt is needed but stdin is not a terminal.
var ErrNotInteractive = errors.New("credential selection requires an interactive terminal")

// Store keeps the selected API key in the key-value store and caches it for
// the generation client.
type Store struct {
	kv       kvstore.Store
	fallback string

	in          io.Reader
	out         io.Writer
	interactive func() bool

	terminalFd   func(io.Reader) (int, bool)
	readPassword func(fd int) ([]byte, error)

	mu       sync.RWMutex
	selected string
}

// Option customizes the store.
type Option func(*Store)

// WithPrompt overrides the prompt streams. The prompt is treated as
// interactive when interactive returns true.
func WithPrompt(in io.Reader, out io.Writer, interactive func() bool) Option {
	return func(s *Store) {
		s.in = in
		s.out = out
		s.interactive = interactive
	}
}

// New returns a store over kv. fallback is the key from configuration and
// is used when nothing has been selected.
func New(kv kvstore.Store, fallback string, opts ...Option) *Store {
	s := &Store{
		kv:          kv,
		fallback:    strings.TrimSpace(fallback),
		in:          os.Stdin,
		out:         os.Stderr,
		interactive: func() bool { return isTerminal(os.Stdin) },

		terminalFd:   terminalFd,
		readPassword: term.ReadPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the persisted selection into the cache.
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, namespace, keyName)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.selected = strings.TrimSpace(string(raw))
	} else {
		s.selected = ""
	}
	return nil
}

// HasCredential reports whether a key is selected or configured.
func (s *Store) HasCredential(ctx context.Context) (bool, error) {
	if err := s.Load(ctx); err != nil {
		return false, err
	}
	return s.APIKey() != "", nil
}

// Select stores key as the active credential.
func (s *Store) Select(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return services.Wrap(services.ErrValidation, "credentials", "select", "key is empty", nil)
	}
	if err := s.kv.Set(ctx, namespace, keyName, []byte(key)); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	s.mu.Lock()
	s.selected = key
	s.mu.Unlock()
	return nil
}

// Clear forgets the selected key. The configured fallback remains.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, namespace, keyName); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()
	return nil
}

// PromptCredentialSelection asks the user for a key on the terminal and
// stores it. It reports whether a key was selected.
func (s *Store) PromptCredentialSelection(ctx context.Context) (bool, error) {
	if s.interactive == nil || !s.interactive() {
		return false, ErrNotInteractive
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprint(s.out, "Paste a paid API key (leave empty to cancel): ")
	line, err := s.readKey()
	if err != nil {
		return false, fmt.Errorf("read credential: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return false, nil
	}
	if err := s.Select(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

// APIKey returns the selected key, or the configured one when none is selected.
// It is safe to call from dispatch goroutines.
func (s *Store) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected != "" {
		return s.selected
	}
	return s.fallback
}

// Source reports where the active key comes from: "selected", "config", or "".
func (s *Store) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.selected != "":
		return "selected"
	case s.fallback != "":
		return "config"
	default:
		return ""
	}
}

// readKey reads one line without echo when the input is a terminal.
func (s *Store) readKey() (string, error) {
	if fd, ok := s.terminalFd(s.in); ok {
		raw, err := s.readPassword(fd)
		fmt.Fprintln(s.out)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(s.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return line, nil
}

func terminalFd(r io.Reader) (int, bool) {
	file, ok := r.(*os.File)
	if !ok || file == nil {
		return 0, false
	}
	fd := int(file.Fd())
	return fd, term.IsTerminal(fd)
}

func isTerminal(file *os.File) bool {
	if file == nil {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
