package model

import (
	"time"
)

// User 用户模型
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	IsActive     bool      `json:"is_active"`
}

// Poll 投票话题模型
type Poll struct {
	ID                 int64      `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	CreatorID          int64      `json:"creator_id"`
	CreatorUsername    string     `json:"creator"`
	CreatedAt          time.Time  `json:"created_at"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	IsActive           bool       `json:"is_active"`
	AllowMultipleVotes bool       `json:"allow_multiple_votes"`
	IsAnonymous        bool       `json:"is_anonymous"`
	Options            []*Option  `json:"options,omitempty"`
}

// Expired Poll是否已过期，过期状态由时间推导而非落库
func (p *Poll) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// Option 选项模型，属于且仅属于一个Poll
type Option struct {
	ID       int64  `json:"id"`
	PollID   int64  `json:"-"`
	Text     string `json:"text"`
	Position int    `json:"position"`
}

// Vote 投票记录，只追加不修改
type Vote struct {
	ID        int64     `json:"id"`
	PollID    int64     `json:"poll_id"`
	OptionID  int64     `json:"option_id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	IPAddress string    `json:"-"`
	VotedAt   time.Time `json:"voted_at"`
	// VoterKey 按去重策略推导的唯一键，与poll_id组成唯一约束
	VoterKey string `json:"-"`
}

// Voter 投票人身份，认证用户带UserID，匿名投票只有IP
type Voter struct {
	UserID   *int64
	Username string
	IP       string
}

// Anonymous 是否匿名投票人
func (v Voter) Anonymous() bool {
	return v.UserID == nil
}

// VoteReceipt 投票成功后返回的凭据
type VoteReceipt struct {
	PollID   int64     `json:"poll_id"`
	OptionID int64     `json:"option_id"`
	VotedAt  time.Time `json:"voted_at"`
}

// OptionResult 单个选项的统计结果
type OptionResult struct {
	OptionID   int64   `json:"option_id"`
	Votes      int     `json:"votes"`
	Percentage float64 `json:"percentage"`
}

// PollResults 投票结果
type PollResults struct {
	PollID     int64           `json:"poll_id"`
	TotalVotes int             `json:"total_votes"`
	Results    []*OptionResult `json:"results"`
}

// VoterRecord 明细结果中的单个投票人记录
type VoterRecord struct {
	Username string    `json:"username"`
	VotedAt  time.Time `json:"voted_at"`
}

// DetailedOptionResult 带投票人明细的选项结果，仅创建者可见
type DetailedOptionResult struct {
	OptionID   int64          `json:"option_id"`
	Votes      int            `json:"votes"`
	Percentage float64        `json:"percentage"`
	Voters     []*VoterRecord `json:"voters"`
}

// DetailedResults 明细结果
type DetailedResults struct {
	PollID     int64                   `json:"poll_id"`
	TotalVotes int                     `json:"total_votes"`
	Results    []*DetailedOptionResult `json:"results"`
}

// TrendingPoll 热门Poll条目
type TrendingPoll struct {
	PollID      int64 `json:"poll_id"`
	RecentVotes int   `json:"recent_votes"`
}

// OverallStats 全站统计
type OverallStats struct {
	TotalVotes  int `json:"total_votes"`
	TotalPolls  int `json:"total_polls"`
	TotalVoters int `json:"total_voters"`
}

// VoteEvent Kafka投票事件
type VoteEvent struct {
	PollID   int64     `json:"poll_id"`
	OptionID int64     `json:"option_id"`
	UserID   *int64    `json:"user_id,omitempty"`
	Username string    `json:"username,omitempty"`
	VotedAt  time.Time `json:"voted_at"`
}
