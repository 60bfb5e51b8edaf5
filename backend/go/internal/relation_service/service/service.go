package service

import (
	"Recall_1.0/backend/go/internal/models"
	"Recall_1.0/backend/go/internal/relation_service/cache"
	"Recall_1.0/backend/go/internal/relation_service/events"
	"Recall_1.0/backend/go/internal/relation_service/store"
	"Recall_1.0/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// timeLayout 是所有持久化时间戳的定宽格式。
// 定宽保证字符串排序和时间排序一致，对话列表依赖这一点做降序排序。
const timeLayout = "2006-01-02T15:04:05.000000"

// reminderTimeLayout 是提醒时刻的格式：24 小时制，不带秒和时区。
const reminderTimeLayout = "15:04"

// maxWriteAttempts 是 revision CAS 失败后的最大重试次数。
// 只有写冲突会重试，存储本身的故障从不重试。
const maxWriteAttempts = 3

// Service 实现所有针对用户文档的操作。
// 每个操作都是同一个模式：按 email 解析用户，变更内存中的嵌套列表，整体写回。
type Service struct {
	store  store.UserStore
	photos store.PhotoUploader
	cache  cache.DescriptorCache
	events events.Publisher
	log    *logger.Logger
	now    func() time.Time
}

// Option 用于注入可选的协作组件。
type Option func(*Service)

// WithPhotos 启用照片上传（MinIO）。
func WithPhotos(p store.PhotoUploader) Option {
	return func(s *Service) { s.photos = p }
}

// WithCache 启用描述符列表缓存（Redis）。
func WithCache(c cache.DescriptorCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithEvents 启用变更事件发布（Kafka）。
func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// NewService 创建一个新的 Service 实例。
func NewService(userStore store.UserStore, opts ...Option) *Service {
	s := &Service{
		store: userStore,
		log:   logger.New("relation_service", "", ""),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveUser 按 email 解析用户文档。所有其他操作都经过这个入口。
func (s *Service) ResolveUser(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, ErrEmailRequired
	}
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// CreateUser 创建一个新用户。按 email 幂等：已存在时返回 created=false，
// 不做任何修改，也不报错。
func (s *Service) CreateUser(ctx context.Context, name, email string, broadcastList []string) (string, bool, error) {
	if email == "" {
		return "", false, ErrEmailRequired
	}

	existing, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return "", false, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return "", false, nil
	}

	if broadcastList == nil {
		broadcastList = []string{}
	}
	user := &models.User{
		Name:          name,
		Email:         email,
		BroadcastList: broadcastList,
		Relations:     []models.Relation{},
		Reminders:     []models.Reminder{},
	}

	id, err := s.store.Insert(ctx, user)
	if err != nil {
		// 并发创建时由 email 唯一索引兜底，同样按"已存在"处理。
		if errors.Is(err, store.ErrDuplicateEmail) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to insert user: %w", err)
	}
	return id, true, nil
}

// UpsertRelation 按 id 整体替换或追加一个 relation。
// 匹配到同 id 时在原位置整体替换（不做字段级合并，缺失的字段会丢失），
// 否则追加到列表末尾。
func (s *Service) UpsertRelation(ctx context.Context, email string, relation models.Relation) error {
	if relation.ID == "" {
		return ErrRelationIDRequired
	}

	err := s.mutateRelations(ctx, email, func(user *models.User) ([]models.Relation, error) {
		relations := user.Relations
		replaced := false
		for i := range relations {
			if relations[i].ID == relation.ID {
				relations[i] = relation
				replaced = true
			}
		}
		if !replaced {
			relations = append(relations, relation)
		}
		return relations, nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.KindRelationUpdated, email, map[string]interface{}{"relation_id": relation.ID})
	return nil
}

// RelationUpdates 是字段级局部更新的白名单。
// 请求里出现的任何其他键都会被静默忽略。
type RelationUpdates struct {
	Name         *string `json:"name"`
	Relationship *string `json:"relationship"`
	Photo        *string `json:"photo"`
}

// UpdateRelationFields 对指定 relation 应用白名单内的字段级局部更新。
func (s *Service) UpdateRelationFields(ctx context.Context, email, relationID string, updates RelationUpdates) error {
	if relationID == "" {
		return ErrRelationIDRequired
	}

	err := s.mutateRelations(ctx, email, func(user *models.User) ([]models.Relation, error) {
		relations := user.Relations
		found := false
		for i := range relations {
			if relations[i].ID != relationID {
				continue
			}
			if updates.Name != nil {
				relations[i].Name = *updates.Name
			}
			if updates.Relationship != nil {
				relations[i].Relationship = *updates.Relationship
			}
			if updates.Photo != nil {
				relations[i].Photo = *updates.Photo
			}
			found = true
			break
		}
		if !found {
			return nil, ErrRelationNotFound
		}
		return relations, nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.KindRelationUpdated, email, map[string]interface{}{"relation_id": relationID})
	return nil
}

// DeleteRelation 删除 id 匹配的 relation。
// 未命中通过前后长度比较检测，而不是显式的存在性检查。
func (s *Service) DeleteRelation(ctx context.Context, email, relationID string) error {
	if relationID == "" {
		return ErrRelationIDRequired
	}

	err := s.mutateRelations(ctx, email, func(user *models.User) ([]models.Relation, error) {
		relations := make([]models.Relation, 0, len(user.Relations))
		for _, rel := range user.Relations {
			if rel.ID != relationID {
				relations = append(relations, rel)
			}
		}
		if len(relations) == len(user.Relations) {
			return nil, ErrRelationNotFound
		}
		return relations, nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.KindRelationDeleted, email, map[string]interface{}{"relation_id": relationID})
	return nil
}

// AppendMessage 向 relation 的 messages 列表追加一条消息。
// relation 不存在时返回 Relation not found（不再保留旧版静默成功的行为）。
func (s *Service) AppendMessage(ctx context.Context, email, relationID, message string) error {
	if relationID == "" {
		return ErrRelationIDRequired
	}

	return s.mutateRelations(ctx, email, func(user *models.User) ([]models.Relation, error) {
		relations := user.Relations
		found := false
		for i := range relations {
			if relations[i].ID == relationID {
				relations[i].Messages = append(relations[i].Messages, message)
				found = true
			}
		}
		if !found {
			return nil, ErrRelationNotFound
		}
		return relations, nil
	})
}

// RegisterFace 为 relation 存储人脸特征向量。
// 向量长度必须恰好是 128，isRegistered 随之置为 true。
func (s *Service) RegisterFace(ctx context.Context, email, relationID string, descriptor []float64) error {
	if len(descriptor) != models.FaceDescriptorDim {
		return ErrInvalidDescriptor
	}

	return s.mutateRelations(ctx, email, func(user *models.User) ([]models.Relation, error) {
		relations := user.Relations
		found := false
		for i := range relations {
			if relations[i].ID == relationID {
				relations[i].FaceDescriptor = descriptor
				relations[i].IsRegistered = true
				found = true
				break
			}
		}
		if !found {
			return nil, ErrRelationNotFound
		}
		return relations, nil
	})
}

// ListDescriptors 把用户的 relations 按注册状态划分成两个投影。
// 这是人脸匹配客户端的热路径，结果经过 Redis 缓存，
// 任何 relation 变更都会使缓存失效。
func (s *Service) ListDescriptors(ctx context.Context, email string) (*models.DescriptorListing, error) {
	if email == "" {
		return nil, ErrEmailRequired
	}

	if s.cache != nil {
		listing, err := s.cache.Get(ctx, email)
		if err != nil {
			// 缓存故障降级为直接读库。
			s.log.WithError(err).Warn("descriptor cache read failed")
		} else if listing != nil {
			return listing, nil
		}
	}

	user, err := s.ResolveUser(ctx, email)
	if err != nil {
		return nil, err
	}

	listing := buildDescriptorListing(user.Relations)

	if s.cache != nil {
		if err := s.cache.Set(ctx, email, listing); err != nil {
			s.log.WithError(err).Warn("descriptor cache write failed")
		}
	}
	return listing, nil
}

// buildDescriptorListing 构建描述符投影，顺序与 relations 列表一致。
// isRegistered 为真但描述符缺失的条目两个列表都不会出现。
func buildDescriptorListing(relations []models.Relation) *models.DescriptorListing {
	listing := &models.DescriptorListing{
		Descriptors:  []models.RegisteredFace{},
		Unregistered: []models.UnregisteredFace{},
	}
	for _, rel := range relations {
		if rel.IsRegistered && len(rel.FaceDescriptor) > 0 {
			listing.Descriptors = append(listing.Descriptors, models.RegisteredFace{
				ID:             rel.ID,
				Name:           rel.Name,
				Relationship:   relationshipOrDefault(rel.Relationship),
				Photo:          rel.Photo,
				FaceDescriptor: rel.FaceDescriptor,
				LastSummary:    summaryOrDefault(rel.LastSummary),
				Count:          rel.Count,
			})
		}
	}
	for _, rel := range relations {
		if !rel.IsRegistered {
			listing.Unregistered = append(listing.Unregistered, models.UnregisteredFace{
				ID:           rel.ID,
				Name:         rel.Name,
				Relationship: relationshipOrDefault(rel.Relationship),
				Photo:        rel.Photo,
			})
		}
	}
	return listing
}

// AppendConversation 追加一条对话记录并更新互动计数。
// lastSummary 无条件覆盖为本次的 summary，空字符串也覆盖（既定行为）。
func (s *Service) AppendConversation(ctx context.Context, email, relationID, transcript, summary string) (string, error) {
	if transcript == "" && summary == "" {
		return "", ErrEmptyConversation
	}
	if relationID == "" {
		return "", ErrRelationIDRequired
	}

	now := s.now()
	conversation := models.Conversation{
		// id 由创建时刻导出：unix 秒 + 六位小数，与历史数据保持同一格式。
		ID:         strconv.FormatFloat(float64(now.UnixMicro())/1e6, 'f', 6, 64),
		Timestamp:  now.Format(timeLayout),
		Transcript: transcript,
		Summary:    summary,
	}

	err := s.mutateRelations(ctx, email, func(user *models.User) ([]models.Relation, error) {
		relations := user.Relations
		found := false
		for i := range relations {
			rel := &relations[i]
			if rel.ID != relationID {
				continue
			}
			rel.Conversations = append(rel.Conversations, conversation)
			rel.LastSummary = summary

			rel.Count.Value++
			rel.Count.Last = conversation.Timestamp
			if rel.Count.First == "" {
				rel.Count.First = conversation.Timestamp
			}
			found = true
			break
		}
		if !found {
			return nil, ErrRelationNotFound
		}
		return relations, nil
	})
	if err != nil {
		return "", err
	}

	s.publish(ctx, events.KindConversationAdded, email, map[string]interface{}{
		"relation_id":     relationID,
		"conversation_id": conversation.ID,
	})
	return conversation.ID, nil
}

// LatestConversation 返回最近一次对话的摘要。
// relation 存在但还没有任何对话时返回"初次见面"哨兵，这是正常状态而非错误。
func (s *Service) LatestConversation(ctx context.Context, email, relationID string) (*models.LatestConversation, error) {
	user, err := s.ResolveUser(ctx, email)
	if err != nil {
		return nil, err
	}

	for _, rel := range user.Relations {
		if rel.ID != relationID {
			continue
		}
		if len(rel.Conversations) == 0 {
			return &models.LatestConversation{
				Summary:        models.FirstMeetingSummary,
				Timestamp:      nil,
				IsFirstMeeting: true,
			}, nil
		}
		latest := rel.Conversations[len(rel.Conversations)-1]
		ts := latest.Timestamp
		return &models.LatestConversation{
			Summary:        latest.Summary,
			Timestamp:      &ts,
			IsFirstMeeting: false,
		}, nil
	}
	return nil, ErrRelationNotFound
}

// ListConversations 展平对话历史，按时间戳降序返回。
// relationID 为空时跨所有 relation 展平，每条标注所属 relation 的信息。
func (s *Service) ListConversations(ctx context.Context, email, relationID string) ([]models.ConversationView, error) {
	user, err := s.ResolveUser(ctx, email)
	if err != nil {
		return nil, err
	}

	views := []models.ConversationView{}
	for _, rel := range user.Relations {
		if relationID != "" && rel.ID != relationID {
			continue
		}
		for _, conv := range rel.Conversations {
			views = append(views, models.ConversationView{
				RelationID:   rel.ID,
				RelationName: rel.Name,
				Relationship: relationshipOrDefault(rel.Relationship),
				ID:           conv.ID,
				Timestamp:    conv.Timestamp,
				Transcript:   conv.Transcript,
				Summary:      conv.Summary,
			})
		}
	}

	// 时间戳是定宽格式，字符串比较等价于时间比较。
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Timestamp > views[j].Timestamp
	})
	return views, nil
}

// AddReminder 添加一条提醒并返回其 id。
// id 取当前列表长度 +1，删除后可能复用（已知风险，按既定约定保留）。
func (s *Service) AddReminder(ctx context.Context, email, reminderTime, message string) (int, error) {
	if _, err := time.Parse(reminderTimeLayout, reminderTime); err != nil {
		return 0, ErrInvalidTime
	}

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		user, err := s.ResolveUser(ctx, email)
		if err != nil {
			return 0, err
		}

		id := len(user.Reminders) + 1
		reminder := models.Reminder{ID: id, Time: reminderTime, Message: message}

		err = s.store.PushReminder(ctx, email, user.Revision, reminder)
		if err == nil {
			s.publish(ctx, events.KindReminderAdded, email, map[string]interface{}{
				"reminder_id": id,
				"time":        reminderTime,
			})
			return id, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return 0, fmt.Errorf("failed to persist reminder: %w", err)
		}
		lastErr = err
	}
	return 0, fmt.Errorf("failed to persist reminder after %d attempts: %w", maxWriteAttempts, lastErr)
}

// ListReminders 按插入顺序返回用户的提醒列表。
func (s *Service) ListReminders(ctx context.Context, email string) ([]models.Reminder, error) {
	user, err := s.ResolveUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.Reminders == nil {
		return []models.Reminder{}, nil
	}
	return user.Reminders, nil
}

// DeleteReminder 删除 id 匹配的提醒，未命中同样通过长度比较检测。
func (s *Service) DeleteReminder(ctx context.Context, email string, reminderID int) error {
	err := s.mutateReminders(ctx, email, func(user *models.User) ([]models.Reminder, error) {
		reminders := make([]models.Reminder, 0, len(user.Reminders))
		for _, r := range user.Reminders {
			if r.ID != reminderID {
				reminders = append(reminders, r)
			}
		}
		if len(reminders) == len(user.Reminders) {
			return nil, ErrReminderNotFound
		}
		return reminders, nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.KindReminderDeleted, email, map[string]interface{}{"reminder_id": reminderID})
	return nil
}

// RegisterPhoto 上传 relation 的照片并把对象路径写入 relation.photo。
func (s *Service) RegisterPhoto(ctx context.Context, email, relationID, filename, contentType string, r io.Reader, size int64) (string, error) {
	if s.photos == nil {
		return "", errors.New("photo storage is not configured")
	}
	if relationID == "" {
		return "", ErrRelationIDRequired
	}

	// 先确认 relation 存在，避免把孤儿对象留在存储桶里。
	user, err := s.ResolveUser(ctx, email)
	if err != nil {
		return "", err
	}
	found := false
	for _, rel := range user.Relations {
		if rel.ID == relationID {
			found = true
			break
		}
	}
	if !found {
		return "", ErrRelationNotFound
	}

	photo, err := s.photos.Upload(ctx, email, filename, contentType, r, size)
	if err != nil {
		return "", fmt.Errorf("failed to upload photo: %w", err)
	}

	if err := s.UpdateRelationFields(ctx, email, relationID, RelationUpdates{Photo: &photo}); err != nil {
		return "", err
	}
	return photo, nil
}

// mutateRelations 执行"解析用户 → 变更 relations → CAS 写回"的完整回合。
// 写冲突时重新解析重试；业务错误（NotFound 等）直接向上返回，不重试。
func (s *Service) mutateRelations(ctx context.Context, email string, mutate func(user *models.User) ([]models.Relation, error)) error {
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		user, err := s.ResolveUser(ctx, email)
		if err != nil {
			return err
		}

		relations, err := mutate(user)
		if err != nil {
			return err
		}

		err = s.store.SetRelations(ctx, email, user.Revision, relations)
		if err == nil {
			s.invalidateDescriptors(ctx, email)
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("failed to persist relations: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("failed to persist relations after %d attempts: %w", maxWriteAttempts, lastErr)
}

// mutateReminders 与 mutateRelations 相同，作用于 reminders 列表。
func (s *Service) mutateReminders(ctx context.Context, email string, mutate func(user *models.User) ([]models.Reminder, error)) error {
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		user, err := s.ResolveUser(ctx, email)
		if err != nil {
			return err
		}

		reminders, err := mutate(user)
		if err != nil {
			return err
		}

		err = s.store.SetReminders(ctx, email, user.Revision, reminders)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("failed to persist reminders: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("failed to persist reminders after %d attempts: %w", maxWriteAttempts, lastErr)
}

// publish 尽力而为地发布变更事件：失败只记日志，不影响请求结果。
func (s *Service) publish(ctx context.Context, kind, email string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	event := events.Event{
		Kind:      kind,
		Email:     email,
		Timestamp: s.now().Format(timeLayout),
		Payload:   payload,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.WithError(err).Warn("failed to publish mutation event")
	}
}

// invalidateDescriptors 在 relation 变更后删除描述符缓存。
func (s *Service) invalidateDescriptors(ctx context.Context, email string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, email); err != nil {
		s.log.WithError(err).Warn("failed to invalidate descriptor cache")
	}
}

func relationshipOrDefault(v string) string {
	if v == "" {
		return models.DefaultRelationship
	}
	return v
}

func summaryOrDefault(v string) string {
	if v == "" {
		return models.FirstMeetingSummary
	}
	return v
}
