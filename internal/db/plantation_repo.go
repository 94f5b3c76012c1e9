package db

import (
	"context"

	"gardenwatch/internal/types"
)

// DefaultRecentSnapshots is how many snapshots per plantation ListActive
// hydrates. The engine reads the newest one and scans back only as far as the
// last recommended watering date.
const DefaultRecentSnapshots = 10

// PlantationRepository reads plantations for the daily batch.
type PlantationRepository struct {
	db              DBTX
	recentSnapshots int
}

// NewPlantationRepository creates a PlantationRepository. recentSnapshots <= 0
// uses DefaultRecentSnapshots.
func NewPlantationRepository(db DBTX, recentSnapshots int) *PlantationRepository {
	if recentSnapshots <= 0 {
		recentSnapshots = DefaultRecentSnapshots
	}
	return &PlantationRepository{db: db, recentSnapshots: recentSnapshots}
}

// plantationColumns lists the joined columns scanned by scanPlantation, in
// order.
const plantationColumns = `p.id, p.user_id, p.template_id, p.planting_date, p.planted_at,
	p.last_watered_at, p.status, COALESCE(p.location, ''), p.latitude, p.longitude,
	p.created_at, p.updated_at,
	t.id, t.name, COALESCE(t.type, ''), t.expected_harvest_days,
	COALESCE(t.watering_frequency, ''), t.watering_quantity_ml,
	COALESCE(t.sun_exposure, ''), COALESCE(t.location_hint, ''),
	COALESCE(u.phone_number, '')`

// ListActive returns every active plantation with its template, owner phone
// and the most recent snapshots (newest first). Ordered by id for stable
// batch logs.
func (r *PlantationRepository) ListActive(ctx context.Context) ([]*types.Plantation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+plantationColumns+`
		 FROM plantations p
		 JOIN templates t ON t.id = p.template_id
		 LEFT JOIN users u ON u.id = p.user_id
		 WHERE p.status = $1
		 ORDER BY p.id`,
		string(types.PlantationActive),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active plantations", err)
	}
	defer rows.Close()

	var (
		plantations []*types.Plantation
		ids         []string
		byID        = make(map[string]*types.Plantation)
	)
	for rows.Next() {
		p := &types.Plantation{Template: &types.Template{}}
		t := p.Template
		var status string
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.TemplateID, &p.PlantingDate, &p.PlantedAt,
			&p.LastWateredAt, &status, &p.Location, &p.Latitude, &p.Longitude,
			&p.CreatedAt, &p.UpdatedAt,
			&t.ID, &t.Name, &t.Type, &t.HarvestDays,
			&t.WateringFrequency, &t.WateringQuantity,
			&t.SunExposure, &t.LocationHint,
			&p.OwnerPhone,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan plantation row", err)
		}
		p.Status = types.PlantationStatus(status)
		plantations = append(plantations, p)
		ids = append(ids, p.ID)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating plantation rows", err)
	}
	if len(ids) == 0 {
		return plantations, nil
	}

	if err := r.hydrateSnapshots(ctx, ids, byID); err != nil {
		return nil, err
	}
	return plantations, nil
}

// hydrateSnapshots loads the newest snapshots for all ids in one query.
func (r *PlantationRepository) hydrateSnapshots(ctx context.Context, ids []string, byID map[string]*types.Plantation) error {
	rows, err := r.db.Query(ctx,
		`SELECT `+snapshotColumns+`
		 FROM (
			SELECT s.*, ROW_NUMBER() OVER (PARTITION BY s.plantation_id ORDER BY s.created_at DESC) AS rn
			  FROM snapshots s
			 WHERE s.plantation_id = ANY($1)
		 ) s
		 WHERE s.rn <= $2
		 ORDER BY s.plantation_id, s.created_at DESC`,
		ids, r.recentSnapshots,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to load recent snapshots", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to scan snapshot row", err)
		}
		if p, ok := byID[s.PlantationID]; ok {
			p.Snapshots = append(p.Snapshots, s)
		}
	}
	if err := rows.Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "error iterating snapshot rows", err)
	}
	return nil
}
