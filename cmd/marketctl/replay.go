package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"datamarket/internal/core"
	"datamarket/internal/infra/persistence/memory"
	"datamarket/pkg/domain"
)

// journalEntry is one sequenced transaction. At, when present, is the
// sequencer's timestamp and becomes the engine clock for that transaction.
type journalEntry struct {
	Op      string          `json:"op"`
	Actor   string          `json:"actor"`
	Dataset string          `json:"dataset,omitempty"`
	At      *time.Time      `json:"at,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// outcome is printed as one JSON line per journal line.
type outcome struct {
	Line    int    `json:"line"`
	Op      string `json:"op"`
	OK      bool   `json:"ok"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"error,omitempty"`
}

type sequencerClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *sequencerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *sequencerClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func runReplay(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	journal := fs.String("journal", "-", "JSONL journal path, - for stdin")
	driver := fs.String("driver", "memory", "storage driver: memory, sqlite or postgres")
	sqlitePath := fs.String("sqlite-path", "", "sqlite database file")
	postgresDSN := fs.String("postgres-dsn", "", "postgres connection string")
	strict := fs.Bool("strict", false, "exit non-zero when any transaction is rejected")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	in := stdin
	if *journal != "-" {
		f, err := os.Open(*journal)
		if err != nil {
			fmt.Fprintf(stderr, "replay: %v\n", err)
			return 1
		}
		defer f.Close()
		in = f
	}

	clock := &sequencerClock{now: time.Now().UTC()}
	store, err := core.OpenPersistentStore(core.StorageConfig{
		Driver:      core.StorageDriver(*driver),
		SQLitePath:  *sqlitePath,
		PostgresDSN: *postgresDSN,
	}, core.NewDefaultRulesEngine(), memory.WithClock(clock.Now))
	if err != nil {
		fmt.Fprintf(stderr, "replay: open store: %v\n", err)
		return 1
	}
	defer func() { _ = core.CloseStore(store) }()
	svc := core.NewService(store, core.WithClock(clock))

	rejected, err := replay(context.Background(), svc, clock, in, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "replay: %v\n", err)
		return 1
	}
	if *strict && rejected > 0 {
		return 1
	}
	return 0
}

// replay applies every journal line in order and reports how many were
// rejected. Malformed lines are reported as rejections and do not stop the
// replay.
func replay(ctx context.Context, svc *core.Service, clock *sequencerClock, in io.Reader, out io.Writer) (int, error) {
	enc := json.NewEncoder(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	rejected := 0
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		var entry journalEntry
		res := outcome{Line: line}
		if err := json.Unmarshal(raw, &entry); err != nil {
			res.Code = "MALFORMED_JOURNAL_LINE"
			res.Message = err.Error()
		} else {
			res.Op = entry.Op
			if entry.At != nil {
				clock.set(entry.At.UTC())
			}
			id, err := apply(ctx, svc, entry)
			res.ID = id
			if err != nil {
				res.Code = string(domain.CodeOf(err))
				res.Message = err.Error()
			} else {
				res.OK = true
			}
		}
		if !res.OK {
			rejected++
		}
		if err := enc.Encode(res); err != nil {
			return rejected, fmt.Errorf("write outcome: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return rejected, fmt.Errorf("read journal: %w", err)
	}
	return rejected, nil
}

type accessArgs struct {
	Type      domain.AccessType `json:"type"`
	RequestID string            `json:"request_id"`
}

func decodeArgs(entry journalEntry, dst any) error {
	if len(entry.Args) == 0 {
		return nil
	}
	if err := json.Unmarshal(entry.Args, dst); err != nil {
		return fmt.Errorf("decode %s args: %w", entry.Op, err)
	}
	return nil
}

func apply(ctx context.Context, svc *core.Service, entry journalEntry) (string, error) {
	actor := core.Principal(entry.Actor)
	switch entry.Op {
	case "initialize_platform":
		var in core.PlatformInit
		if err := decodeArgs(entry, &in); err != nil {
			return "", err
		}
		cfg, _, err := svc.InitializePlatform(ctx, actor, in)
		return cfg.ID, err
	case "set_platform_config":
		var in core.ConfigUpdate
		if err := decodeArgs(entry, &in); err != nil {
			return "", err
		}
		cfg, _, err := svc.SetPlatformConfig(ctx, actor, in)
		return cfg.ID, err
	case "register":
		var in core.RegisterInput
		if err := decodeArgs(entry, &in); err != nil {
			return "", err
		}
		d, _, err := svc.Register(ctx, actor, in)
		return d.ID, err
	case "update_dataset":
		var in core.UpdateInput
		if err := decodeArgs(entry, &in); err != nil {
			return "", err
		}
		d, _, err := svc.UpdateDataset(ctx, actor, entry.Dataset, in)
		return d.ID, err
	case "update_hash":
		var in struct {
			Hash string `json:"hash"`
		}
		if err := decodeArgs(entry, &in); err != nil {
			return "", err
		}
		d, _, err := svc.UpdateHash(ctx, actor, entry.Dataset, in.Hash)
		return d.ID, err
	case "verify":
		var in core.VerifyInput
		if err := decodeArgs(entry, &in); err != nil {
			return "", err
		}
		d, _, err := svc.Verify(ctx, actor, entry.Dataset, in)
		return d.ID, err
	case "purchase":
		var in struct {
			Payment uint64 `json:"payment"`
		}
		if err := decodeArgs(entry, &in); err != nil {
			return "", err
		}
		p, _, err := svc.Purchase(ctx, actor, entry.Dataset, in.Payment)
		return p.ID, err
	case "verify_access":
		var in accessArgs
		if err := decodeArgs(entry, &in); err != nil {
			return "", err
		}
		access, err := svc.VerifyAccess(ctx, actor, entry.Dataset, in.Type)
		return access.Purchase.ID, err
	case "record_access":
		var in accessArgs
		if err := decodeArgs(entry, &in); err != nil {
			return "", err
		}
		p, _, err := svc.RecordAccess(ctx, actor, entry.Dataset, in.Type, in.RequestID)
		return p.ID, err
	case "close_dataset":
		_, err := svc.CloseDataset(ctx, actor, entry.Dataset)
		return entry.Dataset, err
	case "deposit", "withdraw":
		var in struct {
			Amount uint64 `json:"amount"`
		}
		if err := decodeArgs(entry, &in); err != nil {
			return "", err
		}
		move := svc.Deposit
		if entry.Op == "withdraw" {
			move = svc.Withdraw
		}
		le, _, err := move(ctx, actor, in.Amount)
		return le.ID, err
	default:
		return "", errors.New("unknown journal op " + entry.Op)
	}
}
