package store

import (
	"Recall_1.0/backend/go/internal/models"
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrConflict 表示以 revision 为条件的写入没有匹配到文档：
// 在读和写之间有其他写入者抢先提交，调用方应重新读取后重试。
var ErrConflict = errors.New("revision conflict")

// ErrDuplicateEmail 表示插入时触发了 email 唯一索引。
var ErrDuplicateEmail = errors.New("duplicate email")

// UserStore defines the interface for user document persistence.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Insert(ctx context.Context, user *models.User) (string, error)
	SetRelations(ctx context.Context, email string, revision int64, relations []models.Relation) error
	SetReminders(ctx context.Context, email string, revision int64, reminders []models.Reminder) error
	PushReminder(ctx context.Context, email string, revision int64, reminder models.Reminder) error
}

// MongoUserStore is an implementation of UserStore using MongoDB.
type MongoUserStore struct {
	collection *mongo.Collection
}

// NewMongoUserStore creates a new MongoUserStore.
func NewMongoUserStore(db *mongo.Database, collectionName string) *MongoUserStore {
	return &MongoUserStore{
		collection: db.Collection(collectionName),
	}
}

// GetByEmail retrieves a user document by email.
func (s *MongoUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Insert inserts a new user document and returns its stringified ObjectID.
func (s *MongoUserStore) Insert(ctx context.Context, user *models.User) (string, error) {
	res, err := s.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicateEmail
		}
		return "", err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", errors.New("unexpected inserted id type")
	}
	return oid.Hex(), nil
}

// SetRelations 以 revision 为条件整体写回 relations 列表。
// 匹配失败返回 ErrConflict，由上层重新读取重试。
func (s *MongoUserStore) SetRelations(ctx context.Context, email string, revision int64, relations []models.Relation) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"email": email, "revision": revision},
		bson.M{
			"$set": bson.M{"relations": relations},
			"$inc": bson.M{"revision": 1},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

// SetReminders 以 revision 为条件整体写回 reminders 列表。
func (s *MongoUserStore) SetReminders(ctx context.Context, email string, revision int64, reminders []models.Reminder) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"email": email, "revision": revision},
		bson.M{
			"$set": bson.M{"reminders": reminders},
			"$inc": bson.M{"revision": 1},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

// PushReminder 向 reminders 数组追加一条提醒，同样走 revision CAS。
func (s *MongoUserStore) PushReminder(ctx context.Context, email string, revision int64, reminder models.Reminder) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"email": email, "revision": revision},
		bson.M{
			"$push": bson.M{"reminders": reminder},
			"$inc":  bson.M{"revision": 1},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}
