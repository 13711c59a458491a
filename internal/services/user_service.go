package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/231Brooks/HBH-2-sub003/internal/models"
)

// IUserService resolves the notification contacts of auction
// participants. Account management proper lives in the main application;
// this engine only reads users and registers them for tests.
type IUserService interface {
	FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
	FindByIDs(ctx context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error)
	CreateUser(ctx context.Context, name, email string) (*models.User, error)
}

const usersCollection = "users"

// userService implements IUserService.
type userService struct {
	db *mongo.Database
}

// NewUserService creates a new UserService.
func NewUserService(mongoDb *mongo.Database) IUserService {
	return &userService{db: mongoDb}
}

// FindByID finds a non-deleted user by ID.
func (s *userService) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID, "deleted": false}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user %s: %w", userID.Hex(), err)
	}
	return &user, nil
}

// FindByIDs resolves a batch of users in one query. Missing or deleted
// users are simply absent from the returned map.
func (s *userService) FindByIDs(ctx context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	users := make(map[primitive.ObjectID]*models.User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}

	filter := bson.M{"_id": bson.M{"$in": userIDs}, "deleted": false}
	cursor, err := s.db.Collection(usersCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		u := user
		users[user.ID] = &u
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users cursor: %w", err)
	}
	return users, nil
}

// CreateUser inserts a minimal user record.
func (s *userService) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	now := time.Now().UTC()
	user := &models.User{
		ID:        primitive.NewObjectID(),
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.Collection(usersCollection).InsertOne(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}
