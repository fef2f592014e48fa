// Package journal records evaluations in a sqlite database so hosts can
// list what ran, on which engine, and how it ended.
package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/funvibe/duet/internal/pipeline"
	"github.com/funvibe/duet/internal/value"
)

var log = commonlog.GetLogger("duet.journal")

const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	id          TEXT PRIMARY KEY,
	engine      TEXT NOT NULL,
	debug       INTEGER NOT NULL,
	file        TEXT NOT NULL,
	source_hash TEXT NOT NULL,
	result      TEXT NOT NULL,
	fault       TEXT NOT NULL,
	advisories  TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS evaluations_created ON evaluations(created_at);
`

// Entry is one recorded evaluation.
type Entry struct {
	ID         string
	Engine     string
	Debug      bool
	File       string
	SourceHash string
	Result     string
	Fault      string
	Advisories []string
	Created    time.Time
}

// Failed reports whether the evaluation ended in a fault.
func (e Entry) Failed() bool { return e.Fault != "" }

// Journal is a handle on the evaluation log.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path. ":memory:" keeps it in memory.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}
	log.Debugf("journal opened at %s", path)
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores e. A zero Created is set to now.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return errors.New("journal: entry has no id")
	}
	if e.Created.IsZero() {
		e.Created = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO evaluations (id, engine, debug, file, source_hash, result, fault, advisories, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Engine, e.Debug, e.File, e.SourceHash, e.Result, e.Fault,
		strings.Join(e.Advisories, "\n"), e.Created.UnixNano())
	if err != nil {
		return fmt.Errorf("journal: recording %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, engine, debug, file, source_hash, result, fault, advisories, created_at
		 FROM evaluations ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query failed: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			advs    string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Engine, &e.Debug, &e.File, &e.SourceHash, &e.Result, &e.Fault, &advs, &created); err != nil {
			return nil, fmt.Errorf("journal: scan failed: %w", err)
		}
		if advs != "" {
			e.Advisories = strings.Split(advs, "\n")
		}
		e.Created = time.Unix(0, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HashSource is the content hash stored with every entry.
func HashSource(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// FromContext builds an entry from a finished pipeline run.
func FromContext(ctx *pipeline.PipelineContext) Entry {
	e := Entry{
		ID:         ctx.EvalID,
		Engine:     ctx.Engine,
		Debug:      ctx.Config.Debug,
		File:       ctx.FilePath,
		SourceHash: HashSource(ctx.SourceCode),
	}
	switch {
	case ctx.HasErrors():
		e.Fault = ctx.Err().Error()
	case ctx.Fault != nil:
		e.Fault = ctx.Fault.Error()
	default:
		e.Result = value.Display(ctx.Result)
	}
	for _, a := range ctx.Advisories {
		e.Advisories = append(e.Advisories, a.String())
	}
	return e
}

// Processor is a pipeline stage recording every executed evaluation.
type Processor struct {
	Journal *Journal
}

func (p *Processor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if p.Journal == nil || ctx.EvalID == "" {
		return ctx
	}
	c := context.Background()
	if ctx.Context != nil {
		// A cancelled evaluation is still worth recording.
		c = context.WithoutCancel(ctx.Context)
	}
	if err := p.Journal.Record(c, FromContext(ctx)); err != nil {
		log.Errorf("%s", err)
	}
	return ctx
}
