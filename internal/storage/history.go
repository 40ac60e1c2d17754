// Git-backed version history for table files using go-git.

package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/maruel/tabdb/internal/models"
)

// Commit represents a commit in table history.
type Commit struct {
	Hash        string    `json:"hash"`
	Message     string    `json:"message"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"author_email"`
	When        time.Time `json:"when"`
}

// History versions the data directory with git, one commit per table
// mutation. Only table files are ever staged; server_config.json stays
// out of the repository.
type History struct {
	dir          string
	defaultName  string
	defaultEmail string
	repo         *gogit.Repository
	mu           sync.Mutex
}

// NewHistory opens or initializes a git repository at dataDir.
func NewHistory(dataDir string) (*History, error) {
	repo, err := gogit.PlainOpen(dataDir)
	if err != nil {
		// Not a repo yet — initialize.
		repo, err = gogit.PlainInit(dataDir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		ignore := "server_config.json\n*.lock\n*.tmp\n"
		if err := os.WriteFile(filepath.Join(dataDir, ".gitignore"), []byte(ignore), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write .gitignore: %w", err)
		}
	}
	h := &History{
		dir:          dataDir,
		defaultName:  "tabdb",
		defaultEmail: "tabdb@localhost",
		repo:         repo,
	}
	cfg, err := repo.Config()
	if err != nil {
		return nil, fmt.Errorf("failed to read git config: %w", err)
	}
	if cfg.User.Name == "" {
		cfg.User.Name = h.defaultName
		cfg.User.Email = h.defaultEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return h, nil
}

// CommitTable stages relPath and commits it with msg. A clean worktree
// after staging produces no commit.
func (h *History) CommitTable(ctx context.Context, relPath, msg, authorName, authorEmail string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Detach from the request context but keep a timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	_ = ctx // go-git operations don't take a context.

	w, err := h.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := w.Add(relPath); err != nil {
		return fmt.Errorf("failed to stage %s: %w", relPath, err)
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	if authorName == "" {
		authorName = h.defaultName
	}
	if authorEmail == "" {
		authorEmail = h.defaultEmail
	}
	now := time.Now()
	_, err = w.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  now,
		},
		Committer: &object.Signature{
			Name:  h.defaultName,
			Email: h.defaultEmail,
			When:  now,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Log returns commit history for relPath, newest first, limited to n
// commits. n is capped at 1000; n <= 0 defaults to 1000.
func (h *History) Log(_ context.Context, relPath string, n int) ([]Commit, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}

	opts := &gogit.LogOptions{}
	if relPath != "" && relPath != "." {
		slashed := filepath.ToSlash(relPath)
		opts.FileName = &slashed
	}

	iter, err := h.repo.Log(opts)
	if err != nil {
		return nil, nil // no commits yet is not an error
	}
	defer iter.Close()

	var commits []Commit
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, Commit{
			Hash:        c.Hash.String(),
			Message:     subject,
			Author:      c.Author.Name,
			AuthorEmail: c.Author.Email,
			When:        c.Author.When,
		})
	}
	return commits, nil
}

// FileAtCommit retrieves the content of relPath at a specific commit.
func (h *History) FileAtCommit(_ context.Context, hash, relPath string) ([]byte, error) {
	hs := plumbing.NewHash(hash)
	if hash == "HEAD" {
		ref, err := h.repo.Head()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
		}
		hs = ref.Hash()
	}

	c, err := h.repo.CommitObject(hs)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	f, err := c.File(filepath.ToSlash(relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to get file at commit: %w", err)
	}
	reader, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}

// TableRelPath returns the repository-relative path of a table file.
func TableRelPath(name string) string {
	return "tables/" + name
}

// Observer returns a mutation observer that commits the table file
// after every write, attributed to the authenticated user when present.
func (h *History) Observer() func(context.Context, Mutation) {
	return func(ctx context.Context, m Mutation) {
		name, email := "", ""
		if user := models.GetUser(ctx); user != nil {
			name, email = user.Name, user.Email
		}
		msg := m.Op + " " + m.Table
		if m.Detail != "" {
			msg += " (" + m.Detail + ")"
		}
		if err := h.CommitTable(ctx, TableRelPath(m.Table), msg, name, email); err != nil {
			slog.ErrorContext(ctx, "Failed to commit table change", "err", err, "table", m.Table)
		}
	}
}
