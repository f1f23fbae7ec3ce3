package db

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/spacesedan/ariss/internal/models"
)

const maxBatchSize = 25

// DynamoDBAPI is the subset of the DynamoDB client the repository uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type DynamoDBTables struct {
	Subjects  string
	Scores    string
	Judgments string
	// JudgmentTTL sets expires_at on audit rows; zero keeps them forever.
	JudgmentTTL time.Duration
}

// DynamoDBRepository keys scores by subject (partition) and timestamp (sort)
// and judgments by record id and sequence.
type DynamoDBRepository struct {
	client DynamoDBAPI
	tables DynamoDBTables
	now    func() time.Time
}

func NewDynamoDBRepository(client DynamoDBAPI, tables DynamoDBTables) *DynamoDBRepository {
	return &DynamoDBRepository{client: client, tables: tables, now: time.Now}
}

func (r *DynamoDBRepository) Close() error { return nil }

type scoreItem struct {
	Subject          string              `dynamodbav:"subject"`
	TS               int64               `dynamodbav:"ts"`
	ID               string              `dynamodbav:"id"`
	Score            float64             `dynamodbav:"score"`
	Confidence       float64             `dynamodbav:"confidence"`
	SampleSize       int                 `dynamodbav:"sample_size"`
	Distribution     models.Distribution `dynamodbav:"distribution"`
	MeanBias         float64             `dynamodbav:"mean_bias"`
	Mode             string              `dynamodbav:"mode"`
	Category         string              `dynamodbav:"category,omitempty"`
	Variance         float64             `dynamodbav:"variance"`
	StdDev           float64             `dynamodbav:"std_dev"`
	MinScore         float64             `dynamodbav:"min_score"`
	MaxScore         float64             `dynamodbav:"max_score"`
	MeanCredibility  float64             `dynamodbav:"mean_credibility"`
	MeanLengthFactor float64             `dynamodbav:"mean_length_factor"`
	SourceBreakdown  map[string]int      `dynamodbav:"source_breakdown,omitempty"`
}

type judgmentItem struct {
	RecordID          string   `dynamodbav:"record_id"`
	Seq               int      `dynamodbav:"seq"`
	Subject           string   `dynamodbav:"subject"`
	Source            string   `dynamodbav:"source"`
	PlatformID        string   `dynamodbav:"platform_id"`
	Text              string   `dynamodbav:"text"`
	Author            string   `dynamodbav:"author,omitempty"`
	Engagement        int      `dynamodbav:"engagement"`
	Community         string   `dynamodbav:"community,omitempty"`
	CommentedAt       int64    `dynamodbav:"commented_at"`
	RawScore          float64  `dynamodbav:"raw_score"`
	Scale             string   `dynamodbav:"scale"`
	BiasScore         float64  `dynamodbav:"bias_score"`
	ConfidenceHint    *float64 `dynamodbav:"confidence_hint,omitempty"`
	DetectedContext   string   `dynamodbav:"detected_context,omitempty"`
	Classifier        string   `dynamodbav:"classifier,omitempty"`
	AdjustedSentiment float64  `dynamodbav:"adjusted_sentiment"`
	Weight            float64  `dynamodbav:"weight"`
	Credibility       float64  `dynamodbav:"credibility"`
	BiasDiscount      float64  `dynamodbav:"bias_discount"`
	LengthFactor      float64  `dynamodbav:"length_factor"`
	Excluded          bool     `dynamodbav:"excluded"`
	ExpiresAt         int64    `dynamodbav:"expires_at,omitempty"`
}

type subjectItem struct {
	Name     string `dynamodbav:"name"`
	Category string `dynamodbav:"category,omitempty"`
}

// Save writes the subject and judgments first and the record last. The record
// put commits the save: a reader never sees a record whose subject or audit
// rows are missing, and a failed save leaves no record behind.
func (r *DynamoDBRepository) Save(ctx context.Context, record models.ScoreRecord, judgments []models.CommentJudgment) error {
	if err := r.upsertSubject(ctx, record); err != nil {
		return fmt.Errorf("%w: %w", models.ErrRepositoryWrite, err)
	}
	if err := r.storeJudgments(ctx, record, judgments); err != nil {
		return fmt.Errorf("%w: %w", models.ErrRepositoryWrite, err)
	}

	item, err := attributevalue.MarshalMap(toScoreItem(record))
	if err != nil {
		return fmt.Errorf("%w: marshal record: %w", models.ErrRepositoryWrite, err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tables.Scores),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("%w: [DynamoDB] put record: %w", models.ErrRepositoryWrite, err)
	}

	slog.Info("[DynamoDB] Successfully stored score record",
		slog.String("subject", record.Subject),
		slog.Int("judgments", len(judgments)))
	return nil
}

func (r *DynamoDBRepository) upsertSubject(ctx context.Context, record models.ScoreRecord) error {
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tables.Subjects),
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: record.Subject},
		},
		UpdateExpression: aws.String("SET created_at = if_not_exists(created_at, :now)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(toNanos(record.Timestamp), 10)},
		},
	}
	if record.Category != "" {
		input.UpdateExpression = aws.String("SET created_at = if_not_exists(created_at, :now), category = :category")
		input.ExpressionAttributeValues[":category"] = &types.AttributeValueMemberS{Value: record.Category}
	}

	if _, err := r.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("[DynamoDB] upsert subject: %w", err)
	}
	return nil
}

func (r *DynamoDBRepository) storeJudgments(ctx context.Context, record models.ScoreRecord, judgments []models.CommentJudgment) error {
	var expiresAt int64
	if r.tables.JudgmentTTL > 0 {
		expiresAt = r.now().Add(r.tables.JudgmentTTL).Unix()
	}

	for i := 0; i < len(judgments); i += maxBatchSize {
		select {
		case <-ctx.Done():
			slog.Warn("[DynamoDB] context canceled")
			return ctx.Err()
		default:
		}

		end := min(i+maxBatchSize, len(judgments))
		writeRequests := make([]types.WriteRequest, 0, maxBatchSize)
		for seq := i; seq < end; seq++ {
			item, err := attributevalue.MarshalMap(toJudgmentItem(record, seq, judgments[seq], expiresAt))
			if err != nil {
				return fmt.Errorf("[DynamoDB] marshal judgment: %w", err)
			}
			writeRequests = append(writeRequests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				r.tables.Judgments: writeRequests,
			},
		})
		if err != nil {
			return fmt.Errorf("[DynamoDB] Failed to batch write judgments: %w", err)
		}

		retryCount := 0
		backoff := 500 * time.Millisecond
		for len(out.UnprocessedItems) > 0 && retryCount < 3 {
			slog.Warn("[DynamoDB] Retrying unprocessed judgment items...",
				slog.Int("attempt", retryCount+1),
				slog.Int("remaining", len(out.UnprocessedItems[r.tables.Judgments])))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2

			out, err = r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: out.UnprocessedItems,
			})
			if err != nil {
				return fmt.Errorf("[DynamoDB] Retry error %w", err)
			}
			retryCount++
		}

		if remaining := len(out.UnprocessedItems[r.tables.Judgments]); remaining > 0 {
			return fmt.Errorf("[DynamoDB] %d judgment items not written after retries", remaining)
		}
	}
	return nil
}

func (r *DynamoDBRepository) GetLatest(ctx context.Context, subject string) (models.ScoreRecord, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tables.Scores),
		KeyConditionExpression: aws.String("subject = :subject"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":subject": &types.AttributeValueMemberS{Value: subject},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return models.ScoreRecord{}, fmt.Errorf("[DynamoDB] get latest %q: %w", subject, err)
	}
	if len(out.Items) == 0 {
		return models.ScoreRecord{}, fmt.Errorf("%w: no score for %q", models.ErrNotFound, subject)
	}

	var item scoreItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return models.ScoreRecord{}, fmt.Errorf("[DynamoDB] unmarshal record: %w", err)
	}
	return fromScoreItem(item)
}

func (r *DynamoDBRepository) GetHistory(ctx context.Context, subject string, since time.Time) ([]models.ScoreRecord, error) {
	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tables.Scores),
		KeyConditionExpression: aws.String("subject = :subject AND ts >= :since"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":subject": &types.AttributeValueMemberS{Value: subject},
			":since":   &types.AttributeValueMemberN{Value: strconv.FormatInt(toNanos(since), 10)},
		},
		ScanIndexForward: aws.Bool(true),
	})

	var records []models.ScoreRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("[DynamoDB] Query for history failed: %w", err)
		}
		var items []scoreItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("[DynamoDB] Unable to unmarshal history page: %w", err)
		}
		for _, item := range items {
			record, err := fromScoreItem(item)
			if err != nil {
				return nil, err
			}
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *DynamoDBRepository) ListSubjects(ctx context.Context) ([]string, error) {
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.tables.Subjects),
	})

	var subjects []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("[DynamoDB] Scan for subjects failed: %w", err)
		}
		var items []subjectItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("[DynamoDB] Unable to unmarshal subject page: %w", err)
		}
		for _, item := range items {
			subjects = append(subjects, item.Name)
		}
	}
	sort.Strings(subjects)
	return subjects, nil
}

func (r *DynamoDBRepository) GetCommentJudgments(ctx context.Context, subject string, limit int) ([]models.CommentJudgment, error) {
	latest, err := r.GetLatest(ctx, subject)
	if err != nil {
		return nil, err
	}

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tables.Judgments),
		KeyConditionExpression: aws.String("record_id = :record"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":record": &types.AttributeValueMemberS{Value: latest.ID.String()},
		},
		ScanIndexForward: aws.Bool(true),
	})

	var out []models.CommentJudgment
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("[DynamoDB] Query for judgments failed: %w", err)
		}
		var items []judgmentItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("[DynamoDB] Unable to unmarshal judgment page: %w", err)
		}
		for _, item := range items {
			out = append(out, fromJudgmentItem(item))
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func toScoreItem(record models.ScoreRecord) scoreItem {
	var breakdown map[string]int
	if len(record.SourceBreakdown) > 0 {
		breakdown = make(map[string]int, len(record.SourceBreakdown))
		for s, n := range record.SourceBreakdown {
			breakdown[string(s)] = n
		}
	}
	return scoreItem{
		Subject:          record.Subject,
		TS:               toNanos(record.Timestamp),
		ID:               record.ID.String(),
		Score:            record.Score,
		Confidence:       record.Confidence,
		SampleSize:       record.SampleSize,
		Distribution:     record.Distribution,
		MeanBias:         record.MeanBias,
		Mode:             string(record.Mode),
		Category:         record.Category,
		Variance:         record.Variance,
		StdDev:           record.StdDev,
		MinScore:         record.MinScore,
		MaxScore:         record.MaxScore,
		MeanCredibility:  record.MeanCredibility,
		MeanLengthFactor: record.MeanLengthFactor,
		SourceBreakdown:  breakdown,
	}
}

func fromScoreItem(item scoreItem) (models.ScoreRecord, error) {
	id, err := uuid.Parse(item.ID)
	if err != nil {
		return models.ScoreRecord{}, fmt.Errorf("[DynamoDB] bad record id %q: %w", item.ID, err)
	}
	record := models.ScoreRecord{
		ID:               id,
		Subject:          item.Subject,
		Score:            item.Score,
		Confidence:       item.Confidence,
		SampleSize:       item.SampleSize,
		Distribution:     item.Distribution,
		MeanBias:         item.MeanBias,
		Timestamp:        fromNanos(item.TS),
		Mode:             models.AggregationMode(item.Mode),
		Category:         item.Category,
		Variance:         item.Variance,
		StdDev:           item.StdDev,
		MinScore:         item.MinScore,
		MaxScore:         item.MaxScore,
		MeanCredibility:  item.MeanCredibility,
		MeanLengthFactor: item.MeanLengthFactor,
	}
	if len(item.SourceBreakdown) > 0 {
		record.SourceBreakdown = make(map[models.Source]int, len(item.SourceBreakdown))
		for s, n := range item.SourceBreakdown {
			record.SourceBreakdown[models.Source(s)] = n
		}
	}
	return record, nil
}

func toJudgmentItem(record models.ScoreRecord, seq int, cj models.CommentJudgment, expiresAt int64) judgmentItem {
	c, j, w := cj.Comment, cj.Judgment, cj.Weighted
	return judgmentItem{
		RecordID:          record.ID.String(),
		Seq:               seq,
		Subject:           record.Subject,
		Source:            string(c.Source),
		PlatformID:        c.PlatformID,
		Text:              c.Text,
		Author:            c.Author,
		Engagement:        c.Engagement,
		Community:         c.Community,
		CommentedAt:       toNanos(c.Timestamp),
		RawScore:          j.RawScore,
		Scale:             string(j.Scale),
		BiasScore:         j.BiasScore,
		ConfidenceHint:    j.ConfidenceHint,
		DetectedContext:   j.DetectedContext,
		Classifier:        j.Classifier,
		AdjustedSentiment: w.AdjustedSentiment,
		Weight:            w.Weight,
		Credibility:       w.Credibility,
		BiasDiscount:      w.BiasDiscount,
		LengthFactor:      w.LengthFactor,
		Excluded:          cj.Excluded,
		ExpiresAt:         expiresAt,
	}
}

func fromJudgmentItem(item judgmentItem) models.CommentJudgment {
	comment := models.Comment{
		Text:       item.Text,
		Source:     models.Source(item.Source),
		PlatformID: item.PlatformID,
		Timestamp:  fromNanos(item.CommentedAt),
		Author:     item.Author,
		Engagement: item.Engagement,
		Community:  item.Community,
	}
	return models.CommentJudgment{
		Comment: comment,
		Judgment: models.SentimentJudgment{
			CommentRef:      comment.Key(),
			RawScore:        item.RawScore,
			Scale:           models.Scale(item.Scale),
			BiasScore:       item.BiasScore,
			ConfidenceHint:  item.ConfidenceHint,
			DetectedContext: item.DetectedContext,
			Classifier:      item.Classifier,
		},
		Weighted: models.WeightedJudgment{
			CommentRef:        comment.Key(),
			Source:            comment.Source,
			AdjustedSentiment: item.AdjustedSentiment,
			Weight:            item.Weight,
			BiasScore:         item.BiasScore,
			Credibility:       item.Credibility,
			BiasDiscount:      item.BiasDiscount,
			LengthFactor:      item.LengthFactor,
		},
		Excluded: item.Excluded,
	}
}
