package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/loykin/archivist"
	"github.com/loykin/archivist/internal/auth"
	"github.com/loykin/archivist/pkg/client"
)

// command carries the global flags into each subcommand. Commands given a
// DSN work on the store directly, the rest go through the HTTP API.
type command struct {
	global *GlobalFlags
	out    io.Writer
}

func (c command) sessions() *SessionManager { return NewSessionManager(c.global.SessionDir) }

func (c command) newClient() (*client.Client, error) {
	cfg := client.Config{
		BaseURL:  c.global.APIUrl,
		Timeout:  c.global.APITimeout,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Insecure: c.global.Insecure,
		Username: c.global.Username,
		Password: c.global.Password,
	}
	if c.global.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{Enabled: true, CACert: c.global.CACert}
	}
	if sess, err := c.sessions().LoadSession(c.global.APIUrl); err == nil && sess != nil {
		cfg.Token = sess.Token
	}
	return client.New(cfg)
}

func (c command) openLocal(ctx context.Context, dsn string) (*archivist.Repository, error) {
	repo, err := archivist.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return repo, nil
}

func (c command) InitSchema(ctx context.Context, f InitSchemaFlags) error {
	repo, err := c.openLocal(ctx, f.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()
	_, err = fmt.Fprintln(c.out, "schema ready")
	return err
}

func (c command) Add(ctx context.Context, f AddFlags) error {
	var (
		id  int64
		err error
	)
	if f.DSN != "" {
		repo, oerr := c.openLocal(ctx, f.DSN)
		if oerr != nil {
			return oerr
		}
		defer func() { _ = repo.Close() }()
		id, err = repo.Add(ctx, f.Name, f.Host)
	} else {
		cl, cerr := c.newClient()
		if cerr != nil {
			return cerr
		}
		id, err = cl.AddArchiver(ctx, client.AddRequest{NodeName: f.Name, NodeHost: f.Host})
	}
	if err != nil {
		return err
	}
	return printJSON(c.out, map[string]int64{"node_id": id})
}

func (c command) Get(ctx context.Context, f IDFlags) error {
	if f.DSN != "" {
		repo, err := c.openLocal(ctx, f.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()
		a, err := repo.Get(ctx, f.ID)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("archiver %d not found", f.ID)
		}
		tup, err := archivist.ToResponse(a, archivist.ArchiverShape)
		if err != nil {
			return err
		}
		return printJSON(c.out, tup.Record(archivist.ArchiverShape))
	}

	cl, err := c.newClient()
	if err != nil {
		return err
	}
	a, err := cl.GetArchiver(ctx, f.ID)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("archiver %d not found", f.ID)
	}
	return printJSON(c.out, a)
}

func (c command) Remove(ctx context.Context, f IDFlags) error {
	if f.DSN != "" {
		repo, err := c.openLocal(ctx, f.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()
		a, err := repo.Get(ctx, f.ID)
		if err != nil {
			return err
		}
		if a == nil {
			a = &archivist.Archiver{NodeID: f.ID}
		}
		if err := repo.Remove(ctx, a); err != nil {
			return err
		}
	} else {
		cl, err := c.newClient()
		if err != nil {
			return err
		}
		if err := cl.RemoveArchiver(ctx, f.ID); err != nil {
			return err
		}
	}
	return printJSON(c.out, map[string]bool{"ok": true})
}

func (c command) List(ctx context.Context, f ListFlags) error {
	if f.DSN != "" {
		repo, err := c.openLocal(ctx, f.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()
		all, err := repo.List(ctx, f.Limit)
		if err != nil {
			return err
		}
		out := make([]map[string]any, 0, len(all))
		for i := range all {
			tup, err := archivist.ToResponse(&all[i], archivist.ArchiverShape)
			if err != nil {
				return err
			}
			out = append(out, tup.Record(archivist.ArchiverShape))
		}
		return printJSON(c.out, out)
	}

	cl, err := c.newClient()
	if err != nil {
		return err
	}
	all, err := cl.ListArchivers(ctx, f.Limit)
	if err != nil {
		return err
	}
	if all == nil {
		all = []client.Archiver{}
	}
	return printJSON(c.out, all)
}

func (c command) Login(ctx context.Context) error {
	if c.global.Username == "" || c.global.Password == "" {
		return fmt.Errorf("--username and --password are required")
	}
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	tok, err := cl.Login(ctx)
	if err != nil {
		return err
	}
	if err := c.sessions().SaveSession(&Session{
		Token:     tok.Value,
		TokenType: tok.Type,
		ExpiresAt: tok.ExpiresAt,
		Username:  c.global.Username,
		ServerURL: c.global.APIUrl,
	}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	_, err = fmt.Fprintf(c.out, "logged in as %s until %s\n", c.global.Username, tok.ExpiresAt.Format("2006-01-02 15:04:05"))
	return err
}

func (c command) Logout() error {
	if err := c.sessions().ClearSession(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(c.out, "logged out")
	return err
}

func (c command) HashPassword(password string) error {
	h, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, h)
	return err
}
