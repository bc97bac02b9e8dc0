package entity

// User is the chat identity of a portal account. Id carries the role prefix
// (js__, em__, ad__) and Role mirrors it so lists can filter without parsing.
type User struct {
	Id        string  `json:"id" gorm:"column:id;primaryKey"`
	Nickname  string  `json:"nickname" gorm:"column:nickname"`
	Avatar    string  `json:"avatar" gorm:"column:avatar"`
	Role      string  `json:"role" gorm:"column:role;index"`
	Password  string  `json:"-" gorm:"column:password"`
	Extra     *string `json:"extra" gorm:"column:extra;type:json"`
	CreatedAt int64   `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt int64   `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (User) TableName() string {
	return "users"
}

// HasLocalLogin reports whether the user can log in with a chat password.
// Accounts created from portal tokens never get one.
func (u *User) HasLocalLogin() bool {
	return u.Password != ""
}

// DisplayName falls back to the id for accounts the portal never named.
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Id
}

// UserInfo is the profile other participants see
type UserInfo struct {
	Id       string `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Role     string `json:"role"`
}

func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		Id:       u.Id,
		Nickname: u.DisplayName(),
		Avatar:   u.Avatar,
		Role:     u.Role,
	}
}
