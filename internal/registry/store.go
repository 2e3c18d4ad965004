package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/ariacomputecompany/quiltc/internal/wire"
)

// Store is the registry's sqlite-backed persistence layer for nodes and
// containers.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures its schema exists. An empty path opens an in-memory database,
// useful for tests.
func Open(path string) (*Store, error) {
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func openDB(path string) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS nodes (
	node_id         TEXT PRIMARY KEY,
	hostname        TEXT NOT NULL,
	host_ip         TEXT NOT NULL,
	subnet          TEXT NOT NULL,
	cpu_cores       INTEGER,
	ram_mb          INTEGER,
	status          TEXT NOT NULL,
	registered_at   INTEGER NOT NULL,
	last_heartbeat  INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("initialize nodes schema: %w", err)
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS containers (
	container_id TEXT PRIMARY KEY,
	node_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	namespace    TEXT NOT NULL,
	image        TEXT NOT NULL,
	ip_address   TEXT,
	created_at   INTEGER NOT NULL,
	status       TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("initialize containers schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RegisterNode inserts a new node row with status "up" and returns its
// generated node ID.
func (s *Store) RegisterNode(hostname, hostIP, subnet string, cpuCores *int, ramMB *int64) (string, error) {
	nodeID := uuid.NewString()
	now := time.Now().Unix()

	_, err := s.db.Exec(
		`INSERT INTO nodes (node_id, hostname, host_ip, subnet, cpu_cores, ram_mb, status, registered_at, last_heartbeat)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nodeID, hostname, hostIP, subnet, cpuCores, ramMB, wire.NodeUp, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert node: %w", err)
	}
	return nodeID, nil
}

// ErrNotFound is returned by lookups and updates that target a row that
// does not exist.
var ErrNotFound = errors.New("not found")

// Heartbeat bumps last_heartbeat and flips a node back to "up".
func (s *Store) Heartbeat(nodeID string) error {
	res, err := s.db.Exec(
		`UPDATE nodes SET last_heartbeat = ?, status = ? WHERE node_id = ?`,
		time.Now().Unix(), wire.NodeUp, nodeID,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return requireRowsAffected(res)
}

// Deregister marks a node as down immediately, without waiting for the
// liveness sweep.
func (s *Store) Deregister(nodeID string) error {
	res, err := s.db.Exec(`UPDATE nodes SET status = ? WHERE node_id = ?`, wire.NodeDown, nodeID)
	if err != nil {
		return fmt.Errorf("deregister node: %w", err)
	}
	return requireRowsAffected(res)
}

// ListNodes returns every node ordered by registration time.
func (s *Store) ListNodes() ([]wire.Node, error) {
	rows, err := s.db.Query(
		`SELECT node_id, hostname, host_ip, subnet, cpu_cores, ram_mb, status, registered_at, last_heartbeat
		 FROM nodes ORDER BY registered_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var out []wire.Node
	for rows.Next() {
		var n wire.Node
		if err := rows.Scan(&n.NodeID, &n.Hostname, &n.HostIP, &n.Subnet, &n.CPUCores, &n.RAMMB,
			&n.Status, &n.RegisteredAt, &n.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MaxSubnetID scans persisted subnets for the highest allocated /24
// octet, used to rehydrate the in-memory IPAM counter at startup. Returns
// 0 if no nodes have ever been registered.
//
// The comparison must happen numerically in Go, not via SQL's string
// ORDER BY: "10.42.9.0/24" sorts after "10.42.10.0/24" lexicographically,
// which would hand out an already-allocated subnet again after a restart.
func (s *Store) MaxSubnetID() (uint8, error) {
	rows, err := s.db.Query(`SELECT subnet FROM nodes`)
	if err != nil {
		return 0, fmt.Errorf("query subnets: %w", err)
	}
	defer rows.Close()

	var max uint8
	for rows.Next() {
		var subnet string
		if err := rows.Scan(&subnet); err != nil {
			return 0, fmt.Errorf("scan subnet: %w", err)
		}
		id, err := parseSubnetID(subnet)
		if err != nil {
			return 0, err
		}
		if id > max {
			max = id
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("query subnets: %w", err)
	}
	return max, nil
}

// MarkStale flips every node whose last_heartbeat is older than the given
// Unix-seconds threshold from "up" to "down" in a single statement, and
// reports how many rows changed.
func (s *Store) MarkStale(threshold int64) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE nodes SET status = ? WHERE last_heartbeat < ? AND status = ?`,
		wire.NodeDown, threshold, wire.NodeUp,
	)
	if err != nil {
		return 0, fmt.Errorf("mark stale nodes: %w", err)
	}
	return res.RowsAffected()
}

// CreateContainer inserts a new, pending container record.
func (s *Store) CreateContainer(nodeID, name, namespace, image string) (string, error) {
	containerID := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO containers (container_id, node_id, name, namespace, image, created_at, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		containerID, nodeID, name, namespace, image, time.Now().Unix(), wire.ContainerPending,
	)
	if err != nil {
		return "", fmt.Errorf("insert container: %w", err)
	}
	return containerID, nil
}

// GetContainer fetches a single container by ID.
func (s *Store) GetContainer(containerID string) (wire.Container, error) {
	var c wire.Container
	var ip sql.NullString
	err := s.db.QueryRow(
		`SELECT container_id, node_id, name, namespace, image, ip_address, created_at, status
		 FROM containers WHERE container_id = ?`, containerID,
	).Scan(&c.ContainerID, &c.NodeID, &c.Name, &c.Namespace, &c.Image, &ip, &c.CreatedAt, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.Container{}, ErrNotFound
	}
	if err != nil {
		return wire.Container{}, fmt.Errorf("query container: %w", err)
	}
	if ip.Valid {
		c.IPAddress = &ip.String
	}
	return c, nil
}

// ListContainers returns every container, most recently created first.
func (s *Store) ListContainers() ([]wire.Container, error) {
	rows, err := s.db.Query(
		`SELECT container_id, node_id, name, namespace, image, ip_address, created_at, status
		 FROM containers ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query containers: %w", err)
	}
	defer rows.Close()

	var out []wire.Container
	for rows.Next() {
		var c wire.Container
		var ip sql.NullString
		if err := rows.Scan(&c.ContainerID, &c.NodeID, &c.Name, &c.Namespace, &c.Image, &ip,
			&c.CreatedAt, &c.Status); err != nil {
			return nil, fmt.Errorf("scan container row: %w", err)
		}
		if ip.Valid {
			c.IPAddress = &ip.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteContainer removes a container record.
func (s *Store) DeleteContainer(containerID string) error {
	res, err := s.db.Exec(`DELETE FROM containers WHERE container_id = ?`, containerID)
	if err != nil {
		return fmt.Errorf("delete container: %w", err)
	}
	return requireRowsAffected(res)
}

// UpdateContainerIP records the IP address the agent allocated for a
// container and flips its status to running.
func (s *Store) UpdateContainerIP(containerID, ipAddress string) error {
	res, err := s.db.Exec(
		`UPDATE containers SET ip_address = ?, status = ? WHERE container_id = ?`,
		ipAddress, wire.ContainerRunning, containerID,
	)
	if err != nil {
		return fmt.Errorf("update container ip: %w", err)
	}
	return requireRowsAffected(res)
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func parseSubnetID(subnet string) (uint8, error) {
	var a, b, c, d int
	if _, err := fmt.Sscanf(subnet, "%d.%d.%d.%d/24", &a, &b, &c, &d); err != nil {
		return 0, fmt.Errorf("parse subnet %q: %w", subnet, err)
	}
	if c < 0 || c > 255 {
		return 0, fmt.Errorf("subnet %q out of range", subnet)
	}
	return uint8(c), nil
}
