package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/club-seat-reservations/internal/domain"
	"github.com/robertarktes/club-seat-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DirectoryRepository reads the club/place catalog. The catalog is owned
// elsewhere; the engine only resolves places and their operators here.
type DirectoryRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewDirectoryRepository(db *mongo.Database, logger observability.Logger) *DirectoryRepository {
	return &DirectoryRepository{
		coll:   db.Collection("places"),
		logger: logger,
	}
}

type PlaceDoc struct {
	ID          uuid.UUID  `bson:"_id"`
	ClubID      uuid.UUID  `bson:"club_id"`
	ClubName    string     `bson:"club_name"`
	Description string     `bson:"description"`
	OperatorID  *uuid.UUID `bson:"operator_id,omitempty"`
	Tariff      TariffDoc  `bson:"tariff"`
	Games       []string   `bson:"games"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

type TariffDoc struct {
	Name       string  `bson:"name"`
	HourlyCost float64 `bson:"hourly_cost"`
}

func (d *DirectoryRepository) PlaceExists(ctx context.Context, id uuid.UUID) (bool, error) {
	err := d.coll.FindOne(ctx, bson.M{"_id": id}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ResolveOperator returns the operator managing a place, or nil when the
// club has no operator assigned. A missing place is an error; a missing
// operator is not.
func (d *DirectoryRepository) ResolveOperator(ctx context.Context, placeID uuid.UUID) (*uuid.UUID, error) {
	var doc struct {
		OperatorID *uuid.UUID `bson:"operator_id"`
	}
	err := d.coll.FindOne(ctx, bson.M{"_id": placeID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.OperatorID, nil
}

func (d *DirectoryRepository) GetPlace(ctx context.Context, id uuid.UUID) (*domain.PlaceInfo, error) {
	var doc PlaceDoc
	err := d.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		d.logger.Error("failed to get place", err)
		return nil, err
	}
	info := domain.PlaceInfo{
		ID:          doc.ID,
		ClubID:      doc.ClubID,
		ClubName:    doc.ClubName,
		Description: doc.Description,
		OperatorID:  doc.OperatorID,
		TariffName:  doc.Tariff.Name,
		HourlyCost:  doc.Tariff.HourlyCost,
		Games:       doc.Games,
	}
	return &info, nil
}

// UpsertPlace is used by seed tooling and tests.
func (d *DirectoryRepository) UpsertPlace(ctx context.Context, doc PlaceDoc) error {
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}
	_, err := d.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		d.logger.Error("failed to upsert place", err)
	}
	return err
}
