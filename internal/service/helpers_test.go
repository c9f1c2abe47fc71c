package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lvdashuaibi/pollhub/internal/model"
)

// 进程内假实现，接口形状与repository包一致

type memPollStore struct {
	mu     sync.Mutex
	polls  map[int64]*model.Poll
	nextID int64
	err    error
}

func newMemPollStore() *memPollStore {
	return &memPollStore{polls: make(map[int64]*model.Poll), nextID: 1}
}

func (s *memPollStore) CreatePoll(ctx context.Context, poll *model.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	poll.ID = s.nextID
	s.nextID++
	for i, opt := range poll.Options {
		opt.ID = poll.ID*100 + int64(i) + 1
		opt.PollID = poll.ID
	}
	s.polls[poll.ID] = poll
	return nil
}

func (s *memPollStore) GetPoll(ctx context.Context, pollID int64) (*model.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	poll, ok := s.polls[pollID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return poll, nil
}

func (s *memPollStore) ListActivePolls(ctx context.Context, page, perPage int) ([]*model.Poll, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []*model.Poll
	for _, poll := range s.polls {
		if poll.IsActive {
			active = append(active, poll)
		}
	}
	return active, len(active), nil
}

func (s *memPollStore) ClosePoll(ctx context.Context, pollID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[pollID]
	if !ok {
		return model.ErrNotFound
	}
	poll.IsActive = false
	return nil
}

func (s *memPollStore) DeletePoll(ctx context.Context, pollID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.polls[pollID]; !ok {
		return model.ErrNotFound
	}
	delete(s.polls, pollID)
	return nil
}

// memVoteStore 和MySQL一样用(poll_id, voter_key)唯一约束拒绝重复插入
type memVoteStore struct {
	mu     sync.Mutex
	votes  []*model.Vote
	keys   map[string]bool
	nextID int64
	err    error
}

func newMemVoteStore() *memVoteStore {
	return &memVoteStore{keys: make(map[string]bool), nextID: 1}
}

func voteKey(pollID int64, voterKey string) string {
	return fmt.Sprintf("%d|%s", pollID, voterKey)
}

func (s *memVoteStore) InsertVote(ctx context.Context, vote *model.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	key := voteKey(vote.PollID, vote.VoterKey)
	if s.keys[key] {
		return model.ErrDuplicateVote
	}
	s.keys[key] = true
	vote.ID = s.nextID
	s.nextID++
	copied := *vote
	s.votes = append(s.votes, &copied)
	return nil
}

func (s *memVoteStore) HasVoted(ctx context.Context, pollID int64, voterKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.keys[voteKey(pollID, voterKey)], nil
}

func (s *memVoteStore) GetUserVoteOnPoll(ctx context.Context, pollID, userID int64) (*model.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, vote := range s.votes {
		if vote.PollID == pollID && vote.UserID != nil && *vote.UserID == userID {
			return vote, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *memVoteStore) ListUserVotes(ctx context.Context, userID int64, page, perPage int) ([]*model.Vote, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*model.Vote
	for _, vote := range s.votes {
		if vote.UserID != nil && *vote.UserID == userID {
			result = append(result, vote)
		}
	}
	return result, len(result), nil
}

func (s *memVoteStore) count(pollID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, vote := range s.votes {
		if vote.PollID == pollID {
			n++
		}
	}
	return n
}

// memMarks 已投票标记缓存，可模拟不可用
type memMarks struct {
	mu      sync.Mutex
	marks   map[string]bool
	failing bool
	sets    int
}

func newMemMarks() *memMarks {
	return &memMarks{marks: make(map[string]bool)}
}

func (m *memMarks) HasVoteMark(ctx context.Context, pollID int64, voterKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, fmt.Errorf("缓存不可用")
	}
	return m.marks[voteKey(pollID, voterKey)], nil
}

func (m *memMarks) SetVoteMark(ctx context.Context, pollID int64, voterKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return fmt.Errorf("缓存不可用")
	}
	m.marks[voteKey(pollID, voterKey)] = true
	m.sets++
	return nil
}

// memPublisher 投票事件发布，可模拟失败
type memPublisher struct {
	mu     sync.Mutex
	events []*model.VoteEvent
	fail   bool
}

func (p *memPublisher) SendVoteEvent(ctx context.Context, event *model.VoteEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return fmt.Errorf("kafka不可用")
	}
	p.events = append(p.events, event)
	return nil
}

// memCache 结果缓存
type memCache struct {
	mu          sync.Mutex
	results     map[int64]*model.PollResults
	getErr      error
	setErr      error
	invalidated []int64
	hits        int
}

func newMemCache() *memCache {
	return &memCache{results: make(map[int64]*model.PollResults)}
}

func (c *memCache) GetResults(ctx context.Context, pollID int64) (*model.PollResults, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	results, ok := c.results[pollID]
	if ok {
		c.hits++
	}
	return results, ok, nil
}

func (c *memCache) SetResults(ctx context.Context, results *model.PollResults) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.results[results.PollID] = results
	return nil
}

func (c *memCache) InvalidateResults(ctx context.Context, pollID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.results, pollID)
	c.invalidated = append(c.invalidated, pollID)
	return nil
}

// memResultsStore 结果聚合查询，transientFailures>0时前几次调用返回
// ServiceUnavailable，用于验证幂等读的单次重试
type memResultsStore struct {
	mu                sync.Mutex
	counts            map[int64]map[int64]int
	votes             map[int64][]*model.Vote
	trending          []*model.TrendingPoll
	stats             *model.OverallStats
	transientFailures int
	queries           int
}

func newMemResultsStore() *memResultsStore {
	return &memResultsStore{
		counts: make(map[int64]map[int64]int),
		votes:  make(map[int64][]*model.Vote),
	}
}

func (s *memResultsStore) failTransient() error {
	if s.transientFailures > 0 {
		s.transientFailures--
		return fmt.Errorf("查询超时: %w", model.ErrServiceUnavailable)
	}
	return nil
}

func (s *memResultsStore) CountVotesByOption(ctx context.Context, pollID int64) (map[int64]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if err := s.failTransient(); err != nil {
		return nil, err
	}
	return s.counts[pollID], nil
}

func (s *memResultsStore) ListVotesForPoll(ctx context.Context, pollID int64) ([]*model.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failTransient(); err != nil {
		return nil, err
	}
	return s.votes[pollID], nil
}

func (s *memResultsStore) Trending(ctx context.Context, since time.Time, limit int) ([]*model.TrendingPoll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failTransient(); err != nil {
		return nil, err
	}
	return s.trending, nil
}

func (s *memResultsStore) Stats(ctx context.Context) (*model.OverallStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failTransient(); err != nil {
		return nil, err
	}
	return s.stats, nil
}

// memUserStore 用户存储
type memUserStore struct {
	mu     sync.Mutex
	byName map[string]*model.User
	byMail map[string]*model.User
	nextID int64
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		byName: make(map[string]*model.User),
		byMail: make(map[string]*model.User),
		nextID: 1,
	}
}

func (s *memUserStore) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[user.Username]; ok {
		return 0, model.ErrConflict
	}
	if _, ok := s.byMail[user.Email]; ok {
		return 0, model.ErrConflict
	}
	id := s.nextID
	s.nextID++
	copied := *user
	copied.ID = id
	s.byName[user.Username] = &copied
	s.byMail[user.Email] = &copied
	return id, nil
}

func (s *memUserStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byName[username]
	if !ok {
		return nil, model.ErrNotFound
	}
	return user, nil
}

// activePoll 测试用的进行中Poll，两个选项
func activePoll(id int64, creatorID int64, allowMultiple bool) *model.Poll {
	return &model.Poll{
		ID:                 id,
		Title:              "最喜欢的语言",
		CreatorID:          creatorID,
		CreatorUsername:    "creator",
		IsActive:           true,
		AllowMultipleVotes: allowMultiple,
		Options: []*model.Option{
			{ID: id*100 + 1, PollID: id, Text: "Python", Position: 0},
			{ID: id*100 + 2, PollID: id, Text: "JavaScript", Position: 1},
		},
	}
}

func userVoter(id int64, name string) model.Voter {
	return model.Voter{UserID: &id, Username: name, IP: "10.0.0.1"}
}
