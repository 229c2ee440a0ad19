package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoAPI is the subset of the DynamoDB client the store calls.
type DynamoAPI interface {
	dynamodb.ScanAPIClient
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoConfig names the tables and optional endpoint override.
type DynamoConfig struct {
	Region        string
	LogsTable     string
	SessionsTable string
	// Endpoint points the client at DynamoDB Local when set.
	Endpoint string
}

// DynamoStore reads the time-tracking bot's tables.
type DynamoStore struct {
	client        DynamoAPI
	logsTable     string
	sessionsTable string
	logger        *slog.Logger
}

// NewDynamoStore loads the default AWS credential chain.
func NewDynamoStore(ctx context.Context, cfg DynamoConfig, logger *slog.Logger) (*DynamoStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("activity: load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewDynamoStoreWithClient(client, cfg.LogsTable, cfg.SessionsTable, logger), nil
}

// NewDynamoStoreWithClient wraps an existing client.
func NewDynamoStoreWithClient(client DynamoAPI, logsTable, sessionsTable string, logger *slog.Logger) *DynamoStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamoStore{
		client:        client,
		logsTable:     logsTable,
		sessionsTable: sessionsTable,
		logger:        logger,
	}
}

// logItem mirrors a WorkLogs row. Details is either a string or a map with
// a "message" key, depending on which tracker version wrote it.
type logItem struct {
	ID           string  `dynamodbav:"id,omitempty"`
	UserID       string  `dynamodbav:"UserId"`
	Timestamp    string  `dynamodbav:"Timestamp"`
	ActivityType string  `dynamodbav:"ActivityType"`
	Details      any     `dynamodbav:"Details,omitempty"`
	Duration     float64 `dynamodbav:"Duration,omitempty"`
}

type sessionItem struct {
	ID                string  `dynamodbav:"id,omitempty"`
	UserID            string  `dynamodbav:"UserId"`
	StartTime         string  `dynamodbav:"StartTime"`
	EndTime           string  `dynamodbav:"EndTime,omitempty"`
	TotalWorkDuration float64 `dynamodbav:"TotalWorkDuration,omitempty"`
	BreakDuration     float64 `dynamodbav:"BreakDuration,omitempty"`
	Status            string  `dynamodbav:"Status"`
	LastBreakStart    string  `dynamodbav:"LastBreakStart,omitempty"`
}

func (it logItem) entry() Entry {
	return Entry{
		ID:           it.ID,
		UserID:       it.UserID,
		ActivityType: it.ActivityType,
		Details:      detailsText(it.Details),
		Duration:     it.Duration,
		Timestamp:    parseTimestamp(it.Timestamp),
	}
}

func (it sessionItem) session() Session {
	return Session{
		ID:                it.ID,
		UserID:            it.UserID,
		StartTime:         parseTimestamp(it.StartTime),
		EndTime:           parseTimestamp(it.EndTime),
		TotalWorkDuration: it.TotalWorkDuration,
		BreakDuration:     it.BreakDuration,
		Status:            it.Status,
		LastBreakStart:    parseTimestamp(it.LastBreakStart),
	}
}

func detailsText(v any) string {
	switch d := v.(type) {
	case string:
		return d
	case map[string]any:
		if msg, ok := d["message"].(string); ok {
			return msg
		}
	}
	return ""
}

// parseTimestamp accepts RFC 3339 with or without fractional seconds.
// Anything else maps to the zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Record implements Store.
func (s *DynamoStore) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	item, err := attributevalue.MarshalMap(logItem{
		ID:           e.ID,
		UserID:       e.UserID,
		Timestamp:    formatTimestamp(e.Timestamp),
		ActivityType: e.ActivityType,
		Details:      e.Details,
		Duration:     e.Duration,
	})
	if err != nil {
		return fmt.Errorf("activity: marshal entry: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.logsTable),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("activity: put entry: %w", err)
	}
	return nil
}

// Activities implements Store.
func (s *DynamoStore) Activities(ctx context.Context, userID, day string) ([]Entry, error) {
	filter := expression.Name("UserId").Equal(expression.Value(userID)).
		And(expression.Name("Timestamp").BeginsWith(day))
	var items []logItem
	if err := s.scan(ctx, s.logsTable, &filter, func(page []map[string]types.AttributeValue) error {
		var batch []logItem
		if err := attributevalue.UnmarshalListOfMaps(page, &batch); err != nil {
			return err
		}
		items = append(items, batch...)
		return nil
	}); err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(items))
	for _, it := range items {
		out = append(out, it.entry())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Sessions implements Store.
func (s *DynamoStore) Sessions(ctx context.Context, userID, day string) ([]Session, error) {
	filter := expression.Name("UserId").Equal(expression.Value(userID)).
		And(expression.Name("StartTime").BeginsWith(day))
	out, err := s.sessions(ctx, &filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// ActiveSession implements Store.
func (s *DynamoStore) ActiveSession(ctx context.Context, userID string) (*Session, error) {
	filter := expression.Name("UserId").Equal(expression.Value(userID)).
		And(expression.Name("Status").NotEqual(expression.Value(StatusSignedOut)))
	sessions, err := s.sessions(ctx, &filter)
	if err != nil {
		return nil, err
	}
	return latestOpen(sessions)
}

// Dump implements Store.
func (s *DynamoStore) Dump(ctx context.Context) (*Dump, error) {
	d := &Dump{}
	if err := s.scan(ctx, s.logsTable, nil, func(page []map[string]types.AttributeValue) error {
		var batch []logItem
		if err := attributevalue.UnmarshalListOfMaps(page, &batch); err != nil {
			return err
		}
		for _, it := range batch {
			d.Logs = append(d.Logs, it.entry())
		}
		return nil
	}); err != nil {
		return nil, err
	}
	sessions, err := s.sessions(ctx, nil)
	if err != nil {
		return nil, err
	}
	d.Sessions = sessions
	return d, nil
}

func (s *DynamoStore) sessions(ctx context.Context, filter *expression.ConditionBuilder) ([]Session, error) {
	var out []Session
	err := s.scan(ctx, s.sessionsTable, filter, func(page []map[string]types.AttributeValue) error {
		var batch []sessionItem
		if err := attributevalue.UnmarshalListOfMaps(page, &batch); err != nil {
			return err
		}
		for _, it := range batch {
			out = append(out, it.session())
		}
		return nil
	})
	return out, err
}

// scan walks every page of a filtered Scan.
func (s *DynamoStore) scan(ctx context.Context, table string, filter *expression.ConditionBuilder, each func([]map[string]types.AttributeValue) error) error {
	in := &dynamodb.ScanInput{TableName: aws.String(table)}
	if filter != nil {
		expr, err := expression.NewBuilder().WithFilter(*filter).Build()
		if err != nil {
			return fmt.Errorf("activity: build filter: %w", err)
		}
		in.FilterExpression = expr.Filter()
		in.ExpressionAttributeNames = expr.Names()
		in.ExpressionAttributeValues = expr.Values()
	}

	pages := 0
	p := dynamodb.NewScanPaginator(s.client, in)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("activity: scan %s: %w", table, err)
		}
		pages++
		if err := each(out.Items); err != nil {
			return fmt.Errorf("activity: decode %s: %w", table, err)
		}
	}
	s.logger.Debug("activity: scan complete", "table", table, "pages", pages)
	return nil
}

// latestOpen picks the most recently started open session.
func latestOpen(sessions []Session) (*Session, error) {
	var best *Session
	for i := range sessions {
		if !sessions[i].Open() {
			continue
		}
		if best == nil || sessions[i].StartTime.After(best.StartTime) {
			best = &sessions[i]
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}
