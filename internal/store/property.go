package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/stayverify/stayverify/internal/model"
)

type PropertyStore struct {
	db *sql.DB
}

func NewPropertyStore(db *sql.DB) *PropertyStore {
	return &PropertyStore{db: db}
}

func scanProperty(scanner interface{ Scan(...any) error }) (*model.Property, error) {
	var p model.Property
	var start, end sql.NullTime
	err := scanner.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Address, &p.ContactPhone, &p.LogoURL,
		&p.SubscriptionStatus, &start, &end, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if start.Valid {
		p.SubscriptionStartDate = &start.Time
	}
	if end.Valid {
		p.SubscriptionEndDate = &end.Time
	}
	return &p, nil
}

const propertyCols = `id, owner_id, name, address, contact_phone, logo_url,
	subscription_status, subscription_start_date, subscription_end_date, created_at, updated_at`

func (s *PropertyStore) Create(ownerID int64, name, address, contactPhone string) (*model.Property, error) {
	result, err := s.db.Exec(
		`INSERT INTO properties (owner_id, name, address, contact_phone) VALUES (?, ?, ?, ?)`,
		ownerID, name, address, contactPhone,
	)
	if err != nil {
		return nil, fmt.Errorf("insert property: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *PropertyStore) GetByID(id int64) (*model.Property, error) {
	row := s.db.QueryRow(`SELECT `+propertyCols+` FROM properties WHERE id = ?`, id)
	p, err := scanProperty(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	return p, nil
}

func (s *PropertyStore) ListByOwner(ownerID int64) ([]model.Property, error) {
	rows, err := s.db.Query(
		`SELECT `+propertyCols+` FROM properties WHERE owner_id = ? ORDER BY created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var props []model.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		props = append(props, *p)
	}
	return props, rows.Err()
}

func (s *PropertyStore) Update(id int64, name, address, contactPhone, logoURL string) (*model.Property, error) {
	_, err := s.db.Exec(
		`UPDATE properties SET name = ?, address = ?, contact_phone = ?, logo_url = ?, updated_at = datetime('now') WHERE id = ?`,
		name, address, contactPhone, logoURL, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update property: %w", err)
	}
	return s.GetByID(id)
}

// ActivateSubscription opens a subscription window on the property.
// Called from the payment webhook after a captured payment.
func (s *PropertyStore) ActivateSubscription(id int64, start, end time.Time) (*model.Property, error) {
	_, err := s.db.Exec(
		`UPDATE properties SET subscription_status = ?, subscription_start_date = ?, subscription_end_date = ?, updated_at = datetime('now') WHERE id = ?`,
		model.SubscriptionActive, start, end, id,
	)
	if err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}
	return s.GetByID(id)
}

func (s *PropertyStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM properties WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	return nil
}
