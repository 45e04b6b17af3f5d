// Package mongo stores the torrent catalogue: one document per torrent the
// service started, used to restore sessions after a restart.
package mongo

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"piecestream/internal/domain"
)

type Repository struct {
	collection *mongo.Collection
}

type fileDoc struct {
	Index          int    `bson:"index"`
	Path           string `bson:"path"`
	Length         int64  `bson:"length"`
	BytesCompleted int64  `bson:"bytesCompleted,omitempty"`
}

// RecordFields is everything but the key; it doubles as the $set document.
// It is exported because the bson codec skips unexported embedded structs.
type RecordFields struct {
	Name       string    `bson:"name"`
	Status     string    `bson:"status"`
	InfoHash   string    `bson:"infoHash"`
	Magnet     string    `bson:"magnet"`
	Torrent    string    `bson:"torrent"`
	SaveDir    string    `bson:"saveDir"`
	Files      []fileDoc `bson:"files"`
	TotalBytes int64     `bson:"totalBytes"`
	DoneBytes  int64     `bson:"doneBytes"`
	// Progress is cached for sorting (0.0-1.0).
	Progress  float64 `bson:"progress"`
	CreatedAt int64   `bson:"createdAt"`
	UpdatedAt int64   `bson:"updatedAt"`
}

type recordDoc struct {
	ID           string `bson:"_id"`
	RecordFields `bson:",inline"`
}

func NewRepository(client *mongo.Client, dbName, collectionName string) *Repository {
	return &Repository{collection: client.Database(dbName).Collection(collectionName)}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	return mongo.Connect(ctx, opts...)
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "progress", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *Repository) Create(ctx context.Context, t domain.TorrentRecord) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := r.collection.InsertOne(ctx, toDoc(t))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *Repository) Update(ctx context.Context, t domain.TorrentRecord) error {
	if err := t.Validate(); err != nil {
		return err
	}
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": string(t.ID)},
		bson.M{"$set": toDoc(t).RecordFields},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id domain.TorrentID) (domain.TorrentRecord, error) {
	var doc recordDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.TorrentRecord{}, domain.ErrNotFound
		}
		return domain.TorrentRecord{}, err
	}
	return fromDoc(doc), nil
}

func (r *Repository) List(ctx context.Context, filter domain.TorrentFilter) ([]domain.TorrentRecord, error) {
	cursor, err := r.collection.Find(ctx, listQuery(filter), listOptions(filter))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []recordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromDocs(docs), nil
}

func listQuery(filter domain.TorrentFilter) bson.M {
	query := bson.M{}
	if filter.Status != nil {
		query["status"] = string(*filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query["name"] = bson.M{
			"$regex":   regexp.QuoteMeta(search),
			"$options": "i",
		}
	}
	return query
}

func listOptions(filter domain.TorrentFilter) *options.FindOptions {
	field, ok := mongoSortField(strings.TrimSpace(filter.SortBy))
	if !ok {
		field = "updatedAt"
	}
	direction := -1
	if filter.SortOrder == domain.SortAsc {
		direction = 1
	}

	opts := options.Find().SetSort(bson.D{{Key: field, Value: direction}})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return opts
}

func (r *Repository) GetMany(ctx context.Context, ids []domain.TorrentID) ([]domain.TorrentRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	values := make([]string, 0, len(ids))
	for _, id := range ids {
		values = append(values, string(id))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": values}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []recordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromDocs(docs), nil
}

func (r *Repository) Delete(ctx context.Context, id domain.TorrentID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func toDoc(t domain.TorrentRecord) recordDoc {
	files := make([]fileDoc, 0, len(t.Files))
	for _, f := range t.Files {
		files = append(files, fileDoc(f))
	}
	return recordDoc{
		ID: string(t.ID),
		RecordFields: RecordFields{
			Name:       t.Name,
			Status:     string(t.Status),
			InfoHash:   string(t.InfoHash),
			Magnet:     t.Source.Magnet,
			Torrent:    t.Source.Torrent,
			SaveDir:    t.SaveDir,
			Files:      files,
			TotalBytes: t.TotalBytes,
			DoneBytes:  t.DoneBytes,
			Progress:   domain.Ratio(t.DoneBytes, t.TotalBytes),
			CreatedAt:  t.CreatedAt.Unix(),
			UpdatedAt:  t.UpdatedAt.Unix(),
		},
	}
}

func fromDoc(doc recordDoc) domain.TorrentRecord {
	files := make([]domain.FileRef, 0, len(doc.Files))
	for _, f := range doc.Files {
		files = append(files, domain.FileRef(f))
	}
	return domain.TorrentRecord{
		ID:         domain.TorrentID(doc.ID),
		Name:       doc.Name,
		Status:     domain.TorrentStatus(doc.Status),
		InfoHash:   domain.InfoHash(doc.InfoHash),
		Source:     domain.TorrentSource{Magnet: doc.Magnet, Torrent: doc.Torrent},
		SaveDir:    doc.SaveDir,
		Files:      files,
		TotalBytes: doc.TotalBytes,
		DoneBytes:  doc.DoneBytes,
		CreatedAt:  timeFromUnix(doc.CreatedAt),
		UpdatedAt:  timeFromUnix(doc.UpdatedAt),
	}
}

func fromDocs(docs []recordDoc) []domain.TorrentRecord {
	records := make([]domain.TorrentRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, fromDoc(doc))
	}
	return records
}

func timeFromUnix(value int64) time.Time {
	return time.Unix(value, 0).UTC()
}

func mongoSortField(sortBy string) (string, bool) {
	switch sortBy {
	case "":
		return "updatedAt", true
	case "name", "createdAt", "updatedAt", "totalBytes", "progress":
		return sortBy, true
	default:
		return "", false
	}
}
