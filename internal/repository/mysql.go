package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lvdashuaibi/pollhub/config"
	"github.com/lvdashuaibi/pollhub/internal/model"
)

const mysqlDuplicateEntry = 1062

type MySQLRepository struct {
	masterDB     *sql.DB
	slaveDB      *sql.DB
	queryTimeout time.Duration
}

func NewMySQLRepository() (*MySQLRepository, error) {
	masterDB, err := sql.Open("mysql", config.AppConfig.MySQL.Master)
	if err != nil {
		return nil, fmt.Errorf("连接主数据库失败: %w", err)
	}

	masterDB.SetMaxOpenConns(config.AppConfig.MySQL.MaxOpenConns)
	masterDB.SetMaxIdleConns(config.AppConfig.MySQL.MaxIdleConns)
	masterDB.SetConnMaxLifetime(time.Hour)

	if err = masterDB.Ping(); err != nil {
		return nil, fmt.Errorf("主数据库连接测试失败: %w", err)
	}

	slaveDB, err := sql.Open("mysql", config.AppConfig.MySQL.Slave)
	if err != nil {
		return nil, fmt.Errorf("连接从数据库失败: %w", err)
	}

	slaveDB.SetMaxOpenConns(config.AppConfig.MySQL.MaxOpenConns)
	slaveDB.SetMaxIdleConns(config.AppConfig.MySQL.MaxIdleConns)
	slaveDB.SetConnMaxLifetime(time.Hour)

	if err = slaveDB.Ping(); err != nil {
		log.Printf("从数据库连接测试失败: %v，将使用主数据库代替", err)
		slaveDB = masterDB
	}

	return &MySQLRepository{
		masterDB:     masterDB,
		slaveDB:      slaveDB,
		queryTimeout: config.AppConfig.MySQL.QueryTimeout,
	}, nil
}

// withTimeout 所有数据库调用都带有限超时
func (r *MySQLRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.queryTimeout)
}

// translateErr 超时类错误统一对外表现为ServiceUnavailable
func translateErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, model.ErrServiceUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// ---------- 用户 ----------

// CreateUser 创建用户，用户名或邮箱已存在时返回ErrConflict
func (r *MySQLRepository) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := "INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)"
	result, err := r.masterDB.ExecContext(ctx, query, user.Username, user.Email, user.PasswordHash)
	if err != nil {
		if isDuplicateEntry(err) {
			return 0, model.ErrConflict
		}
		return 0, translateErr("创建用户失败", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取用户ID失败: %w", err)
	}
	return id, nil
}

// GetUserByUsername 按用户名查询用户
func (r *MySQLRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := "SELECT id, username, email, password_hash, created_at, is_active FROM users WHERE username = ?"
	row := r.slaveDB.QueryRowContext(ctx, query, username)

	var user model.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, translateErr("查询用户失败", err)
	}
	return &user, nil
}

// ---------- Poll ----------

// CreatePoll Poll与其选项在同一事务中创建
func (r *MySQLRepository) CreatePoll(ctx context.Context, poll *model.Poll) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return translateErr("开始事务失败", err)
	}

	query := `INSERT INTO polls (title, description, creator_id, creator_username, expires_at, allow_multiple_votes, is_anonymous)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query,
		poll.Title, poll.Description, poll.CreatorID, poll.CreatorUsername,
		poll.ExpiresAt, poll.AllowMultipleVotes, poll.IsAnonymous,
	)
	if err != nil {
		tx.Rollback()
		return translateErr("创建Poll失败", err)
	}

	pollID, err := result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("获取Poll ID失败: %w", err)
	}
	poll.ID = pollID

	optStmt, err := tx.PrepareContext(ctx, "INSERT INTO poll_options (poll_id, text, position) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return translateErr("准备选项语句失败", err)
	}
	defer optStmt.Close()

	for _, opt := range poll.Options {
		res, err := optStmt.ExecContext(ctx, pollID, opt.Text, opt.Position)
		if err != nil {
			tx.Rollback()
			return translateErr("创建选项失败", err)
		}
		optID, err := res.LastInsertId()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("获取选项ID失败: %w", err)
		}
		opt.ID = optID
		opt.PollID = pollID
	}

	if err := tx.Commit(); err != nil {
		return translateErr("提交事务失败", err)
	}
	return nil
}

// GetPoll 查询Poll及其全部选项，不存在返回ErrNotFound
func (r *MySQLRepository) GetPoll(ctx context.Context, pollID int64) (*model.Poll, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT id, title, description, creator_id, creator_username, created_at, expires_at,
			 is_active, allow_multiple_votes, is_anonymous FROM polls WHERE id = ?`
	row := r.slaveDB.QueryRowContext(ctx, query, pollID)

	var poll model.Poll
	var description sql.NullString
	err := row.Scan(&poll.ID, &poll.Title, &description, &poll.CreatorID, &poll.CreatorUsername,
		&poll.CreatedAt, &poll.ExpiresAt, &poll.IsActive, &poll.AllowMultipleVotes, &poll.IsAnonymous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, translateErr("查询Poll失败", err)
	}
	poll.Description = description.String

	options, err := r.listOptions(ctx, pollID)
	if err != nil {
		return nil, err
	}
	poll.Options = options
	return &poll, nil
}

func (r *MySQLRepository) listOptions(ctx context.Context, pollID int64) ([]*model.Option, error) {
	query := "SELECT id, poll_id, text, position FROM poll_options WHERE poll_id = ? ORDER BY position, id"
	rows, err := r.slaveDB.QueryContext(ctx, query, pollID)
	if err != nil {
		return nil, translateErr("查询选项失败", err)
	}
	defer rows.Close()

	var options []*model.Option
	for rows.Next() {
		var opt model.Option
		if err := rows.Scan(&opt.ID, &opt.PollID, &opt.Text, &opt.Position); err != nil {
			return nil, fmt.Errorf("扫描选项失败: %w", err)
		}
		options = append(options, &opt)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("迭代选项失败", err)
	}
	return options, nil
}

// ListActivePolls 分页查询进行中的Poll，按创建时间倒序
func (r *MySQLRepository) ListActivePolls(ctx context.Context, page, perPage int) ([]*model.Poll, int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var total int
	if err := r.slaveDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM polls WHERE is_active = 1").Scan(&total); err != nil {
		return nil, 0, translateErr("统计Poll数量失败", err)
	}

	query := `SELECT id, title, description, creator_id, creator_username, created_at, expires_at,
			 is_active, allow_multiple_votes, is_anonymous FROM polls
			 WHERE is_active = 1 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.slaveDB.QueryContext(ctx, query, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, translateErr("查询Poll列表失败", err)
	}
	defer rows.Close()

	var polls []*model.Poll
	for rows.Next() {
		var poll model.Poll
		var description sql.NullString
		if err := rows.Scan(&poll.ID, &poll.Title, &description, &poll.CreatorID, &poll.CreatorUsername,
			&poll.CreatedAt, &poll.ExpiresAt, &poll.IsActive, &poll.AllowMultipleVotes, &poll.IsAnonymous); err != nil {
			return nil, 0, fmt.Errorf("扫描Poll失败: %w", err)
		}
		poll.Description = description.String
		polls = append(polls, &poll)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translateErr("迭代Poll列表失败", err)
	}

	for _, poll := range polls {
		options, err := r.listOptions(ctx, poll.ID)
		if err != nil {
			return nil, 0, err
		}
		poll.Options = options
	}
	return polls, total, nil
}

// ClosePoll 关闭Poll，终态不可逆
func (r *MySQLRepository) ClosePoll(ctx context.Context, pollID int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.masterDB.ExecContext(ctx, "UPDATE polls SET is_active = 0 WHERE id = ?", pollID)
	if err != nil {
		return translateErr("关闭Poll失败", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取更新结果失败: %w", err)
	}
	if affected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeletePoll 删除Poll，选项由外键级联删除
func (r *MySQLRepository) DeletePoll(ctx context.Context, pollID int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.masterDB.ExecContext(ctx, "DELETE FROM polls WHERE id = ?", pollID)
	if err != nil {
		return translateErr("删除Poll失败", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取删除结果失败: %w", err)
	}
	if affected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ---------- 投票 ----------

// InsertVote 写入投票记录。(poll_id, voter_key)唯一约束命中时返回
// ErrDuplicateVote，与缓存预检路径对外表现一致
func (r *MySQLRepository) InsertVote(ctx context.Context, vote *model.Vote) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO votes (poll_id, option_id, user_id, username, ip_address, voted_at, voter_key)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`
	var username sql.NullString
	if vote.Username != "" {
		username = sql.NullString{String: vote.Username, Valid: true}
	}
	result, err := r.masterDB.ExecContext(ctx, query,
		vote.PollID, vote.OptionID, vote.UserID, username, vote.IPAddress, vote.VotedAt, vote.VoterKey)
	if err != nil {
		if isDuplicateEntry(err) {
			return model.ErrDuplicateVote
		}
		return translateErr("写入投票记录失败", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取投票ID失败: %w", err)
	}
	vote.ID = id
	return nil
}

// HasVoted 权威防重检查，按voter_key查投票日志
func (r *MySQLRepository) HasVoted(ctx context.Context, pollID int64, voterKey string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var exists int
	query := "SELECT 1 FROM votes WHERE poll_id = ? AND voter_key = ? LIMIT 1"
	err := r.slaveDB.QueryRowContext(ctx, query, pollID, voterKey).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, translateErr("查询投票日志失败", err)
	}
	return true, nil
}

// GetUserVoteOnPoll 查询用户在某个Poll上的投票记录
func (r *MySQLRepository) GetUserVoteOnPoll(ctx context.Context, pollID, userID int64) (*model.Vote, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT id, poll_id, option_id, user_id, username, ip_address, voted_at, voter_key
			 FROM votes WHERE poll_id = ? AND user_id = ? ORDER BY voted_at LIMIT 1`
	row := r.slaveDB.QueryRowContext(ctx, query, pollID, userID)

	vote, err := scanVoteRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, translateErr("查询投票记录失败", err)
	}
	return vote, nil
}

// ListUserVotes 分页查询用户的投票历史，时间倒序
func (r *MySQLRepository) ListUserVotes(ctx context.Context, userID int64, page, perPage int) ([]*model.Vote, int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var total int
	if err := r.slaveDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM votes WHERE user_id = ?", userID).Scan(&total); err != nil {
		return nil, 0, translateErr("统计投票历史失败", err)
	}

	query := `SELECT id, poll_id, option_id, user_id, username, ip_address, voted_at, voter_key
			 FROM votes WHERE user_id = ? ORDER BY voted_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.slaveDB.QueryContext(ctx, query, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, translateErr("查询投票历史失败", err)
	}
	defer rows.Close()

	votes, err := scanVotes(rows)
	if err != nil {
		return nil, 0, err
	}
	return votes, total, nil
}

// CountVotesByOption 按选项分组统计票数
func (r *MySQLRepository) CountVotesByOption(ctx context.Context, pollID int64) (map[int64]int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := "SELECT option_id, COUNT(*) FROM votes WHERE poll_id = ? GROUP BY option_id"
	rows, err := r.slaveDB.QueryContext(ctx, query, pollID)
	if err != nil {
		return nil, translateErr("统计票数失败", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var optionID int64
		var count int
		if err := rows.Scan(&optionID, &count); err != nil {
			return nil, fmt.Errorf("扫描票数失败: %w", err)
		}
		counts[optionID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("迭代票数失败", err)
	}
	return counts, nil
}

// ListVotesForPoll 查询Poll的全部投票记录，时间升序
func (r *MySQLRepository) ListVotesForPoll(ctx context.Context, pollID int64) ([]*model.Vote, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT id, poll_id, option_id, user_id, username, ip_address, voted_at, voter_key
			 FROM votes WHERE poll_id = ? ORDER BY voted_at, id`
	rows, err := r.slaveDB.QueryContext(ctx, query, pollID)
	if err != nil {
		return nil, translateErr("查询投票记录失败", err)
	}
	defer rows.Close()

	return scanVotes(rows)
}

// Trending 统计时间窗口内票数最多的Poll。票数倒序，平票按poll_id升序
func (r *MySQLRepository) Trending(ctx context.Context, since time.Time, limit int) ([]*model.TrendingPoll, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT poll_id, COUNT(*) AS cnt FROM votes WHERE voted_at >= ?
			 GROUP BY poll_id ORDER BY cnt DESC, poll_id ASC LIMIT ?`
	rows, err := r.slaveDB.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, translateErr("查询热门Poll失败", err)
	}
	defer rows.Close()

	var trending []*model.TrendingPoll
	for rows.Next() {
		var entry model.TrendingPoll
		if err := rows.Scan(&entry.PollID, &entry.RecentVotes); err != nil {
			return nil, fmt.Errorf("扫描热门Poll失败: %w", err)
		}
		trending = append(trending, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("迭代热门Poll失败", err)
	}
	return trending, nil
}

// Stats 全站统计
func (r *MySQLRepository) Stats(ctx context.Context) (*model.OverallStats, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var stats model.OverallStats
	if err := r.slaveDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM votes").Scan(&stats.TotalVotes); err != nil {
		return nil, translateErr("统计总票数失败", err)
	}
	if err := r.slaveDB.QueryRowContext(ctx, "SELECT COUNT(DISTINCT poll_id) FROM votes").Scan(&stats.TotalPolls); err != nil {
		return nil, translateErr("统计Poll数失败", err)
	}
	query := "SELECT COUNT(DISTINCT user_id) FROM votes WHERE user_id IS NOT NULL"
	if err := r.slaveDB.QueryRowContext(ctx, query).Scan(&stats.TotalVoters); err != nil {
		return nil, translateErr("统计投票人数失败", err)
	}
	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVoteRow(row rowScanner) (*model.Vote, error) {
	var vote model.Vote
	var username sql.NullString
	err := row.Scan(&vote.ID, &vote.PollID, &vote.OptionID, &vote.UserID, &username,
		&vote.IPAddress, &vote.VotedAt, &vote.VoterKey)
	if err != nil {
		return nil, err
	}
	vote.Username = username.String
	return &vote, nil
}

func scanVotes(rows *sql.Rows) ([]*model.Vote, error) {
	var votes []*model.Vote
	for rows.Next() {
		vote, err := scanVoteRow(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描投票记录失败: %w", err)
		}
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("迭代投票记录失败", err)
	}
	return votes, nil
}

// Close 关闭数据库连接
func (r *MySQLRepository) Close() {
	if r.masterDB != nil {
		r.masterDB.Close()
	}
	if r.slaveDB != nil && r.slaveDB != r.masterDB {
		r.slaveDB.Close()
	}
}
