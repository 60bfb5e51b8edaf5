package models

// FaceDescriptorDim 是人脸特征向量的固定维度。
// 描述符由客户端预先计算后上传，本服务只负责存储和校验长度。
const FaceDescriptorDim = 128

// DefaultRelationship 是 relationship 字段缺省时使用的占位值。
const DefaultRelationship = "Unknown"

// FirstMeetingSummary 是没有任何对话记录时 lastSummary 的哨兵值。
const FirstMeetingSummary = "First time meeting"

// Relation 代表用户认识的一个人，内嵌在用户文档的 relations 数组中。
// id 由调用方提供，在单个用户的 relations 列表内唯一。
type Relation struct {
	ID             string         `bson:"id" json:"id"`
	Name           string         `bson:"name" json:"name"`
	Relationship   string         `bson:"relationship,omitempty" json:"relationship,omitempty"`
	Photo          string         `bson:"photo,omitempty" json:"photo,omitempty"`
	FaceDescriptor []float64      `bson:"faceDescriptor,omitempty" json:"faceDescriptor,omitempty"`
	IsRegistered   bool           `bson:"isRegistered" json:"isRegistered"`
	Messages       []string       `bson:"messages,omitempty" json:"messages,omitempty"`
	Conversations  []Conversation `bson:"conversations,omitempty" json:"conversations,omitempty"`
	LastSummary    string         `bson:"lastSummary,omitempty" json:"lastSummary,omitempty"`
	Count          Count          `bson:"count" json:"count"`
}

// Conversation 代表一次与 relation 的交谈记录，只追加、不修改、不删除。
// transcript 和 summary 至少有一个非空。
type Conversation struct {
	ID         string `bson:"id" json:"id"`
	Timestamp  string `bson:"timestamp" json:"timestamp"`
	Transcript string `bson:"transcript" json:"transcript"`
	Summary    string `bson:"summary" json:"summary"`
}

// Count 是 relation 的互动计数器。
// first 在第一次对话时设置且不再变化，last 每次对话刷新，value 单调递增。
type Count struct {
	Value int    `bson:"value" json:"value"`
	First string `bson:"first,omitempty" json:"first,omitempty"`
	Last  string `bson:"last,omitempty" json:"last,omitempty"`
}
