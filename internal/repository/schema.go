package repository

import (
	"context"
	"fmt"
	"strings"
)

// Schema 数据库表结构。votes表的(poll_id, voter_key)唯一约束是防重复投票的
// 最终防线：认证用户的key固定为u:<user_id>，匿名投票的key按IP加时间窗口分桶，
// 允许多次投票的Poll每票生成随机key使约束不生效。
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGINT NOT NULL AUTO_INCREMENT,
    username VARCHAR(20) NOT NULL,
    email VARCHAR(120) NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    PRIMARY KEY (id),
    UNIQUE KEY uq_users_username (username),
    UNIQUE KEY uq_users_email (email)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS polls (
    id BIGINT NOT NULL AUTO_INCREMENT,
    title VARCHAR(200) NOT NULL,
    description TEXT,
    creator_id BIGINT NOT NULL,
    creator_username VARCHAR(20) NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    expires_at DATETIME NULL,
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    allow_multiple_votes TINYINT(1) NOT NULL DEFAULT 0,
    is_anonymous TINYINT(1) NOT NULL DEFAULT 0,
    PRIMARY KEY (id),
    KEY idx_polls_active_created (is_active, created_at)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS poll_options (
    id BIGINT NOT NULL AUTO_INCREMENT,
    poll_id BIGINT NOT NULL,
    text VARCHAR(200) NOT NULL,
    position INT NOT NULL DEFAULT 0,
    PRIMARY KEY (id),
    KEY idx_options_poll (poll_id),
    CONSTRAINT fk_options_poll FOREIGN KEY (poll_id) REFERENCES polls (id) ON DELETE CASCADE
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS votes (
    id BIGINT NOT NULL AUTO_INCREMENT,
    poll_id BIGINT NOT NULL,
    option_id BIGINT NOT NULL,
    user_id BIGINT NULL,
    username VARCHAR(20) NULL,
    ip_address VARCHAR(45),
    voted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    voter_key VARCHAR(64) NOT NULL,
    PRIMARY KEY (id),
    UNIQUE KEY uq_votes_poll_voter (poll_id, voter_key),
    KEY idx_votes_poll_user (poll_id, user_id),
    KEY idx_votes_poll_option (poll_id, option_id),
    KEY idx_votes_voted_at (voted_at)
) ENGINE=InnoDB;
`

// EnsureSchema 建表，语句逐条执行
func (r *MySQLRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := r.masterDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("初始化表结构失败: %w", err)
		}
	}
	return nil
}
