package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/search"
)

const (
	preparedName             = "prepared"
	defaultMaxPreparedShapes = 128
)

// Prepared produces the same SQL as Relational but keeps one prepared
// statement per distinct query shape, so repeated listings skip parsing.
type Prepared struct {
	db        *sql.DB
	maxShapes int

	mu    sync.Mutex
	stmts map[string]*sql.Stmt
}

func NewPrepared(db *DB, maxShapes int) *Prepared {
	if maxShapes <= 0 {
		maxShapes = defaultMaxPreparedShapes
	}
	return &Prepared{
		db:        db.Conn(),
		maxShapes: maxShapes,
		stmts:     make(map[string]*sql.Stmt),
	}
}

func (p *Prepared) Name() string {
	return preparedName
}

func (p *Prepared) Count(ctx context.Context, plan search.Plan) (int64, error) {
	q := buildCount(plan)
	stmt, err := p.statement(ctx, q.sql)
	if err != nil {
		return 0, domain.BackendUnavailable(preparedName, err)
	}
	var row *sql.Row
	if stmt != nil {
		row = stmt.QueryRowContext(ctx, q.args...)
	} else {
		row = p.db.QueryRowContext(ctx, q.sql, q.args...)
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, domain.BackendUnavailable(preparedName, err)
	}
	return n, nil
}

func (p *Prepared) Fetch(ctx context.Context, plan search.Plan, offset, limit int) ([]domain.TorrentView, error) {
	q := buildFetch(plan, offset, limit)
	stmt, err := p.statement(ctx, q.sql)
	if err != nil {
		return nil, domain.BackendUnavailable(preparedName, err)
	}
	var rows *sql.Rows
	if stmt != nil {
		rows, err = stmt.QueryContext(ctx, q.args...)
	} else {
		rows, err = p.db.QueryContext(ctx, q.sql, q.args...)
	}
	if err != nil {
		return nil, domain.BackendUnavailable(preparedName, err)
	}
	items, err := scanViews(rows)
	if err != nil {
		return nil, domain.BackendUnavailable(preparedName, err)
	}
	return items, nil
}

func (p *Prepared) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Shapes reports how many statements are cached.
func (p *Prepared) Shapes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stmts)
}

// statement returns the cached statement for text, preparing it on first
// use. Once the cache is full it returns nil and the caller runs the query
// unprepared.
func (p *Prepared) statement(ctx context.Context, text string) (*sql.Stmt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if stmt, ok := p.stmts[text]; ok {
		return stmt, nil
	}
	if p.stmts == nil {
		return nil, errors.New("prepared executor is closed")
	}
	if len(p.stmts) >= p.maxShapes {
		return nil, nil
	}
	stmt, err := p.db.PrepareContext(ctx, text)
	if err != nil {
		return nil, err
	}
	p.stmts[text] = stmt
	return stmt, nil
}

func (p *Prepared) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, stmt := range p.stmts {
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.stmts = nil
	return errors.Join(errs...)
}
