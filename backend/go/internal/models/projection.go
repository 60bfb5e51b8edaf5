package models

// RegisteredFace 是已注册 relation 的投影，包含人脸匹配客户端需要的全部字段。
type RegisteredFace struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Relationship   string    `json:"relationship"`
	Photo          string    `json:"photo,omitempty"`
	FaceDescriptor []float64 `json:"faceDescriptor"`
	LastSummary    string    `json:"lastSummary"`
	Count          Count     `json:"count"`
}

// UnregisteredFace 是未注册 relation 的投影，只包含前端提示“注册此人”所需的字段。
type UnregisteredFace struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Photo        string `json:"photo,omitempty"`
}

// DescriptorListing 把用户的 relations 按注册状态划分成两个投影列表，
// 顺序与底层 relations 列表一致，不做任何排序。
type DescriptorListing struct {
	Descriptors  []RegisteredFace   `json:"descriptors"`
	Unregistered []UnregisteredFace `json:"unregistered"`
}

// ConversationView 是跨 relation 展平后的对话条目，标注了所属 relation 的信息。
type ConversationView struct {
	RelationID   string `json:"relation_id"`
	RelationName string `json:"relation_name"`
	Relationship string `json:"relationship"`
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	Transcript   string `json:"transcript"`
	Summary      string `json:"summary"`
}

// LatestConversation 是最近一次对话的查询结果。
// 没有任何对话记录是正常状态，用哨兵值表示，而不是错误。
type LatestConversation struct {
	Summary        string  `json:"summary"`
	Timestamp      *string `json:"timestamp"`
	IsFirstMeeting bool    `json:"isFirstMeeting"`
}
