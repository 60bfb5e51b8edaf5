package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User 代表 users 集合中的一个用户文档（根聚合）。
// email 是唯一的外部键；所有 API 操作都通过 email 定位用户，
// relations 和 reminders 作为嵌套数组完全内嵌在用户文档中。
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Name          string             `bson:"name" json:"name"`
	Email         string             `bson:"email" json:"email"`
	BroadcastList []string           `bson:"broadcastList" json:"broadcastList"`
	Relations     []Relation         `bson:"relations" json:"relations"`
	Reminders     []Reminder         `bson:"reminders" json:"reminders"`

	// Revision 是乐观并发令牌：每次整表写回都以读到的版本为条件并自增，
	// 并发写入者在 CAS 失败时重新读取重试，而不是静默丢失更新。
	Revision int64 `bson:"revision" json:"-"`
}

// Reminder 代表用户级的每日提醒，内嵌在用户文档的 reminders 数组中。
// id 在插入时取当前列表长度 +1，删除后可能被复用（已知风险，按约定保留）。
type Reminder struct {
	ID      int    `bson:"id" json:"id"`
	Time    string `bson:"time" json:"time"` // 24 小时制 "HH:MM"
	Message string `bson:"message" json:"message"`
}
