package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

// Postgres looks nodes up in a device table and a collection table keyed by
// node_id. Queries run per call; the gateway only asks for unknown nodes.
type Postgres struct {
	db              *sql.DB
	deviceQuery     string
	collectionQuery string
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping directory db: %w", err)
	}
	return db, nil
}

func NewPostgres(db *sql.DB, deviceTable, collectionTable string) *Postgres {
	if deviceTable == "" {
		deviceTable = "devices"
	}
	if collectionTable == "" {
		collectionTable = "collections"
	}
	return &Postgres{
		db: db,
		deviceQuery: "SELECT serial_number, protocol, ip, port, slave_address, endian FROM " +
			pq.QuoteIdentifier(deviceTable) + " WHERE node_id = $1",
		collectionQuery: "SELECT uuid, name, sample_rate, publish_interval FROM " +
			pq.QuoteIdentifier(collectionTable) + " WHERE node_id = $1",
	}
}

func (p *Postgres) ResolveDevice(ctx context.Context, nodeID string) (domain.Device, error) {
	d := domain.Device{NodeID: nodeID}
	err := p.db.QueryRowContext(ctx, p.deviceQuery, nodeID).
		Scan(&d.SerialNumber, &d.Protocol, &d.IP, &d.Port, &d.SlaveAddress, &d.Endian)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Device{}, fmt.Errorf("device %q: %w", nodeID, ports.ErrNodeNotFound)
	}
	if err != nil {
		return domain.Device{}, fmt.Errorf("query device %q: %w", nodeID, err)
	}
	return d, nil
}

func (p *Postgres) ResolveCollection(ctx context.Context, nodeID string) (domain.Collection, error) {
	c := domain.Collection{NodeID: nodeID}
	err := p.db.QueryRowContext(ctx, p.collectionQuery, nodeID).
		Scan(&c.UUID, &c.Name, &c.SampleRate, &c.PublishInterval)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Collection{}, fmt.Errorf("collection %q: %w", nodeID, ports.ErrNodeNotFound)
	}
	if err != nil {
		return domain.Collection{}, fmt.Errorf("query collection %q: %w", nodeID, err)
	}
	return c, nil
}

var _ ports.NodeDirectory = (*Postgres)(nil)
