package graph

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/lvdashuaibi/pollhub/internal/model"
	"github.com/lvdashuaibi/pollhub/internal/service"
)

// 只读GraphQL Schema，只暴露公开的聚合结果，不含投票人身份
const schemaString = `
type OptionResult {
  optionId: Int!
  votes: Int!
  percentage: Float!
}

type PollResults {
  pollId: Int!
  totalVotes: Int!
  results: [OptionResult!]!
}

type TrendingPoll {
  pollId: Int!
  recentVotes: Int!
}

type OverallStats {
  totalVotes: Int!
  totalPolls: Int!
  totalVoters: Int!
}

type Query {
  # 查询Poll的聚合结果
  pollResults(pollId: Int!): PollResults!

  # 查询时间窗口内的热门Poll
  trendingPolls(hours: Int): [TrendingPoll!]!

  # 全站统计
  stats: OverallStats!
}

schema {
  query: Query
}
`

// NewHandler 创建GraphQL处理器
func NewHandler(results *service.ResultsService) http.Handler {
	resolver := &Resolver{results: results}
	schema := graphql.MustParseSchema(schemaString, resolver,
		graphql.UseFieldResolvers(),
	)
	return &relay.Handler{Schema: schema}
}

// Resolver GraphQL解析器
type Resolver struct {
	results *service.ResultsService
}

// PollResults 查询Poll的聚合结果
func (r *Resolver) PollResults(ctx context.Context, args struct{ PollID int32 }) (*PollResultsResolver, error) {
	results, err := r.results.GetResults(ctx, int64(args.PollID))
	if err != nil {
		return nil, err
	}
	return &PollResultsResolver{results: results}, nil
}

// TrendingPolls 查询热门Poll
func (r *Resolver) TrendingPolls(ctx context.Context, args struct{ Hours *int32 }) ([]*TrendingPollResolver, error) {
	window := 24 * time.Hour
	if args.Hours != nil && *args.Hours > 0 {
		window = time.Duration(*args.Hours) * time.Hour
	}

	trending, err := r.results.Trending(ctx, window)
	if err != nil {
		return nil, err
	}

	resolvers := make([]*TrendingPollResolver, len(trending))
	for i, entry := range trending {
		resolvers[i] = &TrendingPollResolver{entry: entry}
	}
	return resolvers, nil
}

// Stats 全站统计
func (r *Resolver) Stats(ctx context.Context) (*OverallStatsResolver, error) {
	stats, err := r.results.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &OverallStatsResolver{stats: stats}, nil
}

// PollResultsResolver 聚合结果解析器
type PollResultsResolver struct {
	results *model.PollResults
}

func (r *PollResultsResolver) PollID() int32 {
	return int32(r.results.PollID)
}

func (r *PollResultsResolver) TotalVotes() int32 {
	return int32(r.results.TotalVotes)
}

func (r *PollResultsResolver) Results() []*OptionResultResolver {
	resolvers := make([]*OptionResultResolver, len(r.results.Results))
	for i, result := range r.results.Results {
		resolvers[i] = &OptionResultResolver{result: result}
	}
	return resolvers
}

// OptionResultResolver 选项结果解析器
type OptionResultResolver struct {
	result *model.OptionResult
}

func (r *OptionResultResolver) OptionID() int32 {
	return int32(r.result.OptionID)
}

func (r *OptionResultResolver) Votes() int32 {
	return int32(r.result.Votes)
}

func (r *OptionResultResolver) Percentage() float64 {
	return r.result.Percentage
}

// TrendingPollResolver 热门Poll解析器
type TrendingPollResolver struct {
	entry *model.TrendingPoll
}

func (r *TrendingPollResolver) PollID() int32 {
	return int32(r.entry.PollID)
}

func (r *TrendingPollResolver) RecentVotes() int32 {
	return int32(r.entry.RecentVotes)
}

// OverallStatsResolver 全站统计解析器
type OverallStatsResolver struct {
	stats *model.OverallStats
}

func (r *OverallStatsResolver) TotalVotes() int32 {
	return int32(r.stats.TotalVotes)
}

func (r *OverallStatsResolver) TotalPolls() int32 {
	return int32(r.stats.TotalPolls)
}

func (r *OverallStatsResolver) TotalVoters() int32 {
	return int32(r.stats.TotalVoters)
}

// Playground GraphQL Playground页面
func Playground(c *gin.Context) {
	c.Header("Content-Type", "text/html")
	c.String(http.StatusOK, playgroundHTML)
}

// playgroundHTML GraphQL Playground HTML
const playgroundHTML = `
<!DOCTYPE html>
<html>
<head>
  <meta charset=utf-8/>
  <meta name="viewport" content="user-scalable=no, initial-scale=1.0, minimum-scale=1.0, maximum-scale=1.0, minimal-ui">
  <title>Pollhub GraphQL Playground</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/css/index.css" />
  <link rel="shortcut icon" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/favicon.png" />
  <script src="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/js/middleware.js"></script>
</head>
<body>
  <div id="root"></div>
  <script>window.addEventListener('load', function (event) {
      GraphQLPlayground.init(document.getElementById('root'), {
        endpoint: '/graphql'
      })
    })</script>
</body>
</html>
`
