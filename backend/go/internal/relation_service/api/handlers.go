package api

import (
	"Recall_1.0/backend/go/internal/models"
	"Recall_1.0/backend/go/internal/relation_service/service"
	"Recall_1.0/backend/go/pkg/logger"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck 是单个依赖组件的健康检查函数。
type HealthCheck func(ctx context.Context) error

// Handler 封装了所有 API endpoint 的处理函数。
type Handler struct {
	service *service.Service
	health  map[string]HealthCheck
}

// NewHandler 创建一个新的 Handler 实例。
// health 里只注册实际启用的组件，未配置的组件不参与健康报告。
func NewHandler(s *service.Service, health map[string]HealthCheck) *Handler {
	return &Handler{service: s, health: health}
}

// respondError 把服务层错误翻译成 HTTP 响应。
// 输入校验失败和资源不存在带原始消息返回；
// 其余一律按存储故障处理，只返回笼统消息，不向客户端泄露内部细节。
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case service.IsInvalidInput(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case service.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.New("relation_service", requestID(c), "").WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// Root 处理存活检查。
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "API is running"})
}

// Health 报告各依赖组件的连通性。MongoDB 不可用时整体返回 503。
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	components := gin.H{}
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			components[name] = "unavailable"
			if name == "mongodb" {
				status = http.StatusServiceUnavailable
			}
		} else {
			components[name] = "ok"
		}
	}
	c.JSON(status, components)
}

// GetUser 按 email 返回完整的用户文档。
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.service.ResolveUser(c.Request.Context(), c.Query("email"))
	if err != nil {
		respondError(c, err, "Failed to fetch user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// CreateUserRequest 定义了创建用户请求的 JSON 结构。
type CreateUserRequest struct {
	Name          string   `json:"name"`
	Email         string   `json:"email" binding:"required,email"`
	BroadcastList []string `json:"broadcastList"`
}

// CreateUser 处理创建用户请求。按 email 幂等：重复创建返回"已存在"，不报错。
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, created, err := h.service.CreateUser(c.Request.Context(), req.Name, req.Email, req.BroadcastList)
	if err != nil {
		respondError(c, err, "User not created")
		return
	}
	if !created {
		c.JSON(http.StatusOK, gin.H{"message": "User already exists"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User created successfully", "user_id": id})
}

// AddRelationRequest 定义了新增/替换 relation 请求的 JSON 结构。
type AddRelationRequest struct {
	Email    string           `json:"email" binding:"required"`
	Relation *models.Relation `json:"relation" binding:"required"`
}

// AddRelation 按 id 整体替换或追加一个 relation。
// 调用方需要发送完整的 relation 对象：缺失的字段在替换时会丢失。
func (h *Handler) AddRelation(c *gin.Context) {
	var req AddRelationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.UpsertRelation(c.Request.Context(), req.Email, *req.Relation); err != nil {
		respondError(c, err, "Relation not added")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Relation added successfully"})
}

// AddMessageRequest 定义了追加消息请求的 JSON 结构。
type AddMessageRequest struct {
	Email      string `json:"email" binding:"required"`
	RelationID string `json:"relation_id" binding:"required"`
	Message    string `json:"message"`
}

// AddMessage 向 relation 的消息列表追加一条消息。
func (h *Handler) AddMessage(c *gin.Context) {
	var req AddMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.AppendMessage(c.Request.Context(), req.Email, req.RelationID, req.Message); err != nil {
		respondError(c, err, "Message not added")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message added successfully"})
}

// AddReminderRequest 定义了添加提醒请求的 JSON 结构。
type AddReminderRequest struct {
	Email   string `json:"email" binding:"required"`
	Time    string `json:"time" binding:"required"`
	Message string `json:"message"`
}

// AddReminder 添加一条每日提醒。
func (h *Handler) AddReminder(c *gin.Context) {
	var req AddReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.service.AddReminder(c.Request.Context(), req.Email, req.Time, req.Message); err != nil {
		respondError(c, err, "Reminder not added")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Reminder set for %s", req.Time)})
}

// GetReminders 按插入顺序返回用户的提醒列表。
func (h *Handler) GetReminders(c *gin.Context) {
	reminders, err := h.service.ListReminders(c.Request.Context(), c.Query("email"))
	if err != nil {
		respondError(c, err, "Failed to fetch reminders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": reminders})
}

// DeleteReminderRequest 定义了删除提醒请求的 JSON 结构。
type DeleteReminderRequest struct {
	Email      string `json:"email" binding:"required"`
	ReminderID *int   `json:"reminder_id"`
}

// DeleteReminder 删除 id 匹配的提醒。
func (h *Handler) DeleteReminder(c *gin.Context) {
	var req DeleteReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ReminderID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrReminderIDRequired.Error()})
		return
	}

	if err := h.service.DeleteReminder(c.Request.Context(), req.Email, *req.ReminderID); err != nil {
		respondError(c, err, "Reminder not deleted")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reminder deleted successfully"})
}

// RegisterFaceRequest 定义了注册人脸描述符请求的 JSON 结构。
type RegisterFaceRequest struct {
	Email          string    `json:"email" binding:"required"`
	RelationID     string    `json:"relation_id" binding:"required"`
	FaceDescriptor []float64 `json:"face_descriptor"`
}

// RegisterFace 为 relation 存储 128 维人脸特征向量。
func (h *Handler) RegisterFace(c *gin.Context) {
	var req RegisterFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.RegisterFace(c.Request.Context(), req.Email, req.RelationID, req.FaceDescriptor); err != nil {
		respondError(c, err, "Face not registered")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Face registered successfully", "relation_id": req.RelationID})
}

// GetFaceDescriptors 把用户的 relations 按注册状态划分成两个投影列表。
func (h *Handler) GetFaceDescriptors(c *gin.Context) {
	listing, err := h.service.ListDescriptors(c.Request.Context(), c.Query("email"))
	if err != nil {
		respondError(c, err, "Failed to fetch descriptors")
		return
	}
	c.JSON(http.StatusOK, listing)
}

// AddConversationRequest 定义了追加对话请求的 JSON 结构。
// transcript 和 summary 至少要有一个非空。
type AddConversationRequest struct {
	Email      string `json:"email" binding:"required"`
	RelationID string `json:"relation_id" binding:"required"`
	Transcript string `json:"transcript"`
	Summary    string `json:"summary"`
}

// AddConversation 追加一条对话记录并更新互动计数。
func (h *Handler) AddConversation(c *gin.Context) {
	var req AddConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.service.AppendConversation(c.Request.Context(), req.Email, req.RelationID, req.Transcript, req.Summary)
	if err != nil {
		respondError(c, err, "Conversation not added")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":         "Conversation added",
		"summary":         req.Summary,
		"conversation_id": id,
	})
}

// LatestConversation 返回最近一次对话的摘要；没有历史时返回"初次见面"哨兵。
func (h *Handler) LatestConversation(c *gin.Context) {
	result, err := h.service.LatestConversation(c.Request.Context(), c.Query("email"), c.Query("relation_id"))
	if err != nil {
		respondError(c, err, "Failed to fetch conversation")
		return
	}
	c.JSON(http.StatusOK, result)
}

// AllConversations 展平返回对话历史，relation_id 可选，按时间戳降序。
func (h *Handler) AllConversations(c *gin.Context) {
	conversations, err := h.service.ListConversations(c.Request.Context(), c.Query("email"), c.Query("relation_id"))
	if err != nil {
		respondError(c, err, "Failed to fetch conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// DeleteRelationRequest 定义了删除 relation 请求的 JSON 结构。
type DeleteRelationRequest struct {
	Email      string `json:"email" binding:"required"`
	RelationID string `json:"relation_id"`
}

// DeleteRelation 删除 id 匹配的 relation。
func (h *Handler) DeleteRelation(c *gin.Context) {
	var req DeleteRelationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.DeleteRelation(c.Request.Context(), req.Email, req.RelationID); err != nil {
		respondError(c, err, "Relation not deleted")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Relation deleted successfully"})
}

// UpdateRelationRequest 定义了字段级局部更新请求的 JSON 结构。
// updates 里只有 name/relationship/photo 会被应用，其他键静默忽略。
type UpdateRelationRequest struct {
	Email      string                  `json:"email" binding:"required"`
	RelationID string                  `json:"relation_id"`
	Updates    service.RelationUpdates `json:"updates"`
}

// UpdateRelation 对 relation 应用白名单内的字段级局部更新。
func (h *Handler) UpdateRelation(c *gin.Context) {
	var req UpdateRelationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.UpdateRelationFields(c.Request.Context(), req.Email, req.RelationID, req.Updates); err != nil {
		respondError(c, err, "Relation not updated")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Relation updated successfully"})
}

// UploadPhoto 接收 multipart 表单（email、relation_id、file），
// 把照片存入对象存储并更新 relation.photo。
func (h *Handler) UploadPhoto(c *gin.Context) {
	email := c.PostForm("email")
	relationID := c.PostForm("relation_id")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file unreadable"})
		return
	}
	defer file.Close()

	photo, err := h.service.RegisterPhoto(
		c.Request.Context(),
		email,
		relationID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
		fileHeader.Size,
	)
	if err != nil {
		respondError(c, err, "Photo not uploaded")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Photo uploaded successfully", "photo": photo})
}
