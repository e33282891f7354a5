//go:build cgo

package findings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements Store on KuzuDB. It requires CGO because the go-kuzu
// driver wraps KuzuDB's C library.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

var _ Store = (*KuzuStore)(nil)

// NewKuzuStore opens an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore opens a KuzuDB database at dbPath, creating the parent
// directory if needed. KuzuDB creates the leaf directory itself.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	db, err := kuzu.OpenDatabase(path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// Node tables precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Run(
		id STRING,
		outcome STRING,
		started_at STRING,
		cost_usd DOUBLE,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS AgentRun(
		id STRING,
		session_id STRING,
		agent STRING,
		wave INT64,
		status STRING,
		cost_usd DOUBLE,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Finding(
		id STRING,
		agent_run_id STRING,
		agent STRING,
		file STRING,
		line INT64,
		severity STRING,
		message STRING,
		fix STRING,
		rule STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS File(
		path STRING,
		PRIMARY KEY(path)
	)`,
	`CREATE REL TABLE IF NOT EXISTS HAS_AGENT(FROM Run TO AgentRun)`,
	`CREATE REL TABLE IF NOT EXISTS FLAGGED(FROM AgentRun TO Finding)`,
	`CREATE REL TABLE IF NOT EXISTS LOCATED_IN(FROM Finding TO File)`,
}

func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

func (s *KuzuStore) AddRun(_ context.Context, run RunNode) error {
	return s.exec(
		"CREATE (r:Run {id: $id, outcome: $outcome, started_at: $started, cost_usd: $cost})",
		map[string]any{
			"id":      run.SessionID,
			"outcome": run.Outcome,
			"started": run.StartedAt.UTC().Format(time.RFC3339Nano),
			"cost":    run.CostUSD,
		},
	)
}

func (s *KuzuStore) AddAgentRun(_ context.Context, ar AgentRunNode) error {
	if err := s.mustExist("Run", ar.SessionID); err != nil {
		return err
	}
	err := s.exec(
		`CREATE (a:AgentRun {
			id: $id,
			session_id: $session,
			agent: $agent,
			wave: $wave,
			status: $status,
			cost_usd: $cost
		})`,
		map[string]any{
			"id":      ar.ID,
			"session": ar.SessionID,
			"agent":   ar.Agent,
			"wave":    int64(ar.Wave),
			"status":  ar.Status,
			"cost":    ar.CostUSD,
		},
	)
	if err != nil {
		return err
	}
	return s.exec(
		`MATCH (r:Run {id: $src}), (a:AgentRun {id: $dst})
		 CREATE (r)-[:HAS_AGENT]->(a)`,
		map[string]any{"src": ar.SessionID, "dst": ar.ID},
	)
}

func (s *KuzuStore) AddFinding(_ context.Context, f FindingNode) error {
	if err := s.mustExist("AgentRun", f.AgentRunID); err != nil {
		return err
	}
	stmts := []struct {
		cypher string
		params map[string]any
	}{
		{
			`CREATE (f:Finding {
				id: $id,
				agent_run_id: $ar,
				agent: $agent,
				file: $file,
				line: $line,
				severity: $sev,
				message: $msg,
				fix: $fix,
				rule: $rule
			})`,
			map[string]any{
				"id":    f.ID,
				"ar":    f.AgentRunID,
				"agent": f.Agent,
				"file":  f.File,
				"line":  int64(f.Line),
				"sev":   f.Severity,
				"msg":   f.Message,
				"fix":   f.Fix,
				"rule":  f.Rule,
			},
		},
		{"MERGE (p:File {path: $path})", map[string]any{"path": f.File}},
		{
			`MATCH (a:AgentRun {id: $src}), (f:Finding {id: $dst})
			 CREATE (a)-[:FLAGGED]->(f)`,
			map[string]any{"src": f.AgentRunID, "dst": f.ID},
		},
		{
			`MATCH (f:Finding {id: $src}), (p:File {path: $dst})
			 CREATE (f)-[:LOCATED_IN]->(p)`,
			map[string]any{"src": f.ID, "dst": f.File},
		},
	}
	for _, st := range stmts {
		if err := s.exec(st.cypher, st.params); err != nil {
			return err
		}
	}
	return nil
}

const findingColumns = "f.id, f.agent_run_id, f.agent, f.file, f.line, f.severity, f.message, f.fix, f.rule"

const findingOrder = "ORDER BY f.file, f.line, f.agent, f.id"

func (s *KuzuStore) FindingsByRun(_ context.Context, sessionID string) ([]FindingNode, error) {
	rows, err := s.query(
		`MATCH (r:Run {id: $id})-[:HAS_AGENT]->(:AgentRun)-[:FLAGGED]->(f:Finding)
		 RETURN `+findingColumns+` `+findingOrder,
		map[string]any{"id": sessionID},
	)
	if err != nil {
		return nil, err
	}
	return rowsToFindings(rows), nil
}

func (s *KuzuStore) FindingsByFile(_ context.Context, path string) ([]FindingNode, error) {
	rows, err := s.query(
		`MATCH (f:Finding)-[:LOCATED_IN]->(:File {path: $path})
		 RETURN `+findingColumns+` `+findingOrder,
		map[string]any{"path": path},
	)
	if err != nil {
		return nil, err
	}
	return rowsToFindings(rows), nil
}

func (s *KuzuStore) Hotspots(_ context.Context, limit int) ([]FileCount, error) {
	cypher := `MATCH (f:Finding)-[:LOCATED_IN]->(p:File)
		 RETURN p.path, count(f) AS n
		 ORDER BY n DESC, p.path`
	params := map[string]any{}
	if limit > 0 {
		cypher += " LIMIT $lim"
		params["lim"] = int64(limit)
	}
	rows, err := s.query(cypher, params)
	if err != nil {
		return nil, err
	}
	out := make([]FileCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, FileCount{Path: toString(r[0]), Findings: toInt(r[1])})
	}
	return out, nil
}

func (s *KuzuStore) Stats(_ context.Context) (*Stats, error) {
	st := &Stats{BySeverity: make(map[string]int)}
	counts := []struct {
		table string
		dst   *int
	}{
		{"Run", &st.Runs},
		{"AgentRun", &st.AgentRuns},
		{"Finding", &st.Findings},
		{"File", &st.Files},
	}
	for _, c := range counts {
		n, err := s.countTable(c.table)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}
	rows, err := s.query("MATCH (f:Finding) RETURN f.severity, count(f)", nil)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		st.BySeverity[toString(r[0])] = toInt(r[1])
	}
	return st, nil
}

// mustExist fails when no node of table has the given primary key.
func (s *KuzuStore) mustExist(table, id string) error {
	// Table name is a fixed internal constant.
	rows, err := s.query(
		fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN count(n)", table),
		map[string]any{"id": id},
	)
	if err != nil {
		return err
	}
	if len(rows) == 0 || toInt(rows[0][0]) == 0 {
		return fmt.Errorf("findings: unknown %s %s", table, id)
	}
	return nil
}

func (s *KuzuStore) countTable(table string) (int, error) {
	rows, err := s.query(fmt.Sprintf("MATCH (n:%s) RETURN count(n)", table), nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a Cypher statement and collects every row as a []any in
// column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func rowsToFindings(rows [][]any) []FindingNode {
	out := make([]FindingNode, 0, len(rows))
	for _, r := range rows {
		out = append(out, FindingNode{
			ID:         toString(r[0]),
			AgentRunID: toString(r[1]),
			Agent:      toString(r[2]),
			File:       toString(r[3]),
			Line:       toInt(r[4]),
			Severity:   toString(r[5]),
			Message:    toString(r[6]),
			Fix:        toString(r[7]),
			Rule:       toString(r[8]),
		})
	}
	return out
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
