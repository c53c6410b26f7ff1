package mongo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepository is the read-mostly catalog collaborator: movies,
// theaters with their physical seats, and user accounts. The booking core
// consults it only to validate references; all lookups report ErrNotFound
// for missing documents.
type CatalogRepository struct {
	movies   *mongo.Collection
	theaters *mongo.Collection
	users    *mongo.Collection
	logger   observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		movies:   db.Collection("movies"),
		theaters: db.Collection("theaters"),
		users:    db.Collection("users"),
		logger:   logger,
	}
}

type MovieDoc struct {
	ID          int64     `bson:"_id"`
	Title       string    `bson:"title"`
	DurationMin int       `bson:"duration_min"`
	ReleaseYear int       `bson:"release_year"`
	CreatedAt   time.Time `bson:"created_at"`
}

type TheaterDoc struct {
	ID         string           `bson:"_id"`
	Name       string           `bson:"name"`
	CinemaName string           `bson:"cinema_name"`
	Seats      []TheaterSeatDoc `bson:"seats"`
	CreatedAt  time.Time        `bson:"created_at"`
}

type TheaterSeatDoc struct {
	Label  string `bson:"label"`
	Row    string `bson:"row"`
	Number int    `bson:"number"`
}

type UserDoc struct {
	Email     string    `bson:"_id"`
	FirstName string    `bson:"fname"`
	LastName  string    `bson:"lname"`
	Phone     string    `bson:"phone"`
	Pwd       string    `bson:"pwd"`
	CreatedAt time.Time `bson:"created_at"`
}

func (c *CatalogRepository) GetMovie(ctx context.Context, id int64) (*MovieDoc, error) {
	var m MovieDoc
	err := c.movies.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *CatalogRepository) CreateMovie(ctx context.Context, m MovieDoc) error {
	m.CreatedAt = time.Now()
	_, err := c.movies.InsertOne(ctx, m)
	if err != nil {
		c.logger.Error("failed to create movie", err)
	}
	return err
}

// SearchMovies lists movies whose title contains the given substring
// (case-insensitive) released strictly after the given year.
func (c *CatalogRepository) SearchMovies(ctx context.Context, titleContains string, releasedAfter int) ([]MovieDoc, error) {
	filter := bson.M{
		"title":        bson.M{"$regex": titleContains, "$options": "i"},
		"release_year": bson.M{"$gt": releasedAfter},
	}
	cur, err := c.movies.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []MovieDoc
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogRepository) GetTheater(ctx context.Context, id string) (*TheaterDoc, error) {
	var t TheaterDoc
	err := c.theaters.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *CatalogRepository) CreateTheater(ctx context.Context, t TheaterDoc) error {
	t.CreatedAt = time.Now()
	_, err := c.theaters.InsertOne(ctx, t)
	if err != nil {
		c.logger.Error("failed to create theater", err)
	}
	return err
}

func (c *CatalogRepository) GetUser(ctx context.Context, email string) (*UserDoc, error) {
	var u UserDoc
	err := c.users.FindOne(ctx, bson.M{"_id": email}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser stores a new account with the password hashed to SHA-256 hex.
// The core never reads Pwd; it exists for the front end's login flow.
func (c *CatalogRepository) CreateUser(ctx context.Context, u UserDoc, password string) error {
	u.Pwd = HashPassword(password)
	u.CreatedAt = time.Now()
	_, err := c.users.InsertOne(ctx, u)
	if err != nil {
		c.logger.Error("failed to create user", err)
	}
	return err
}

func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
