package store

import (
	"Recall_1.0/backend/go/internal/models"
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryUserStore 是 UserStore 的内存实现，供测试和本地开发使用。
// 它复刻 Mongo 实现的语义：按 email 查找、email 唯一、revision CAS。
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

// NewMemoryUserStore creates a new MemoryUserStore.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*models.User)}
}

// GetByEmail retrieves a user document by email.
func (s *MemoryUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return nil, nil
	}
	// 返回深拷贝，调用方对嵌套列表的修改不会影响"持久化"状态。
	return cloneUser(user), nil
}

// Insert inserts a new user document and returns its stringified ObjectID.
func (s *MemoryUserStore) Insert(ctx context.Context, user *models.User) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Email]; ok {
		return "", ErrDuplicateEmail
	}

	stored := cloneUser(user)
	stored.ID = primitive.NewObjectID()
	s.users[user.Email] = stored
	return stored.ID.Hex(), nil
}

// SetRelations 以 revision 为条件整体写回 relations 列表。
func (s *MemoryUserStore) SetRelations(ctx context.Context, email string, revision int64, relations []models.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok || user.Revision != revision {
		return ErrConflict
	}
	user.Relations = cloneRelations(relations)
	user.Revision++
	return nil
}

// SetReminders 以 revision 为条件整体写回 reminders 列表。
func (s *MemoryUserStore) SetReminders(ctx context.Context, email string, revision int64, reminders []models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok || user.Revision != revision {
		return ErrConflict
	}
	user.Reminders = append([]models.Reminder{}, reminders...)
	user.Revision++
	return nil
}

// PushReminder 向 reminders 数组追加一条提醒。
func (s *MemoryUserStore) PushReminder(ctx context.Context, email string, revision int64, reminder models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok || user.Revision != revision {
		return ErrConflict
	}
	user.Reminders = append(user.Reminders, reminder)
	user.Revision++
	return nil
}

func cloneUser(u *models.User) *models.User {
	cp := *u
	cp.BroadcastList = append([]string{}, u.BroadcastList...)
	cp.Relations = cloneRelations(u.Relations)
	cp.Reminders = append([]models.Reminder{}, u.Reminders...)
	return &cp
}

func cloneRelations(relations []models.Relation) []models.Relation {
	out := make([]models.Relation, len(relations))
	for i, r := range relations {
		out[i] = r
		out[i].FaceDescriptor = append([]float64(nil), r.FaceDescriptor...)
		out[i].Messages = append([]string(nil), r.Messages...)
		out[i].Conversations = append([]models.Conversation(nil), r.Conversations...)
	}
	return out
}
