// Package repository keeps the permanent conversation record in DynamoDB: who
// owns each conversation and every message ever exchanged in it.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"restaurant-agent/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"
	counterPK   = "COUNTER#conversation"
	counterSK   = "COUNTER#"

	// sortTimeLayout is fixed width so sort keys order the same as instants;
	// RFC3339Nano drops trailing zeros and does not.
	sortTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrConversationNotFound is domain.ErrConversationNotFound.
var ErrConversationNotFound = domain.ErrConversationNotFound

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client wraps a DynamoDB table holding conversations and their transcripts.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(conversationID int64) string {
	return "CONV#" + strconv.FormatInt(conversationID, 10)
}

// msgSK orders messages chronologically; the suffix keeps two messages
// written in the same instant distinct.
func msgSK(ts time.Time, suffix string) string {
	return skPrefixMsg + ts.UTC().Format(sortTimeLayout) + "#" + suffix
}

// CreateConversation allocates the next conversation id and records its owner.
func (c *Client) CreateConversation(ctx context.Context, userID int64) (int64, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: counterPK},
			"SK": &types.AttributeValueMemberS{Value: counterSK},
		},
		UpdateExpression: aws.String("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("repository: CreateConversation allocate id: %w", err)
	}
	if out == nil {
		return 0, errors.New("repository: CreateConversation: empty counter response")
	}
	seq, err := intAttr(out.Attributes, "seq")
	if err != nil {
		return 0, fmt.Errorf("repository: CreateConversation decode id: %w", err)
	}

	now := c.now().UTC().Format(time.RFC3339)
	meta := domain.ConversationMeta{
		PK:             convPK(seq),
		SK:             skMeta,
		ConversationID: seq,
		UserID:         userID,
		CreatedAt:      now,
		LastActivity:   now,
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                metaItem(meta),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: CreateConversation put meta: %w", err)
	}
	return seq, nil
}

// CheckOwner returns ErrConversationNotFound unless conversationID exists and
// belongs to userID.
func (c *Client) CheckOwner(ctx context.Context, userID, conversationID int64) error {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("repository: CheckOwner get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return ErrConversationNotFound
	}
	owner, err := intAttr(out.Item, "userId")
	if err != nil {
		return fmt.Errorf("repository: CheckOwner decode owner: %w", err)
	}
	if owner != userID {
		return ErrConversationNotFound
	}
	return nil
}

// AppendMessage durably appends one message and bumps the conversation's last
// activity in a single transaction.
func (c *Client) AppendMessage(ctx context.Context, userID, conversationID int64, role domain.Role, content string) error {
	now := c.now().UTC()
	entry := domain.TranscriptEntry{
		PK:             convPK(conversationID),
		SK:             msgSK(now, string(role)+"-"+uuid.NewString()[:8]),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		Content:        content,
		CreatedAt:      now.Format(time.RFC3339Nano),
	}

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                entryItem(entry),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(c.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: entry.PK},
						"SK": &types.AttributeValueMemberS{Value: skMeta},
					},
					UpdateExpression:    aws.String("SET lastActivity = :ts"),
					ConditionExpression: aws.String("attribute_exists(PK) AND userId = :uid"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":ts":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
						":uid": &types.AttributeValueMemberN{Value: strconv.FormatInt(userID, 10)},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: AppendMessage: %w", err)
	}
	return nil
}

// GetHistory returns up to limit of the most recent messages, oldest first.
func (c *Client) GetHistory(ctx context.Context, conversationID int64, limit int) ([]domain.TranscriptEntry, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetHistory query: %w", err)
	}

	entries := make([]domain.TranscriptEntry, 0, len(out.Items))
	for _, item := range out.Items {
		e, err := itemToEntry(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetHistory unmarshal: %w", err)
		}
		entries = append(entries, e)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func itemToEntry(item map[string]types.AttributeValue) (domain.TranscriptEntry, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	convID, err := intAttr(item, "conversationId")
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	userID, _ := intAttr(item, "userId")       // older items may lack it
	createdAt, _ := strAttr(item, "createdAt") // allow empty

	return domain.TranscriptEntry{
		PK:             pk,
		SK:             sk,
		ConversationID: convID,
		UserID:         userID,
		Role:           domain.Role(role),
		Content:        content,
		CreatedAt:      createdAt,
	}, nil
}

func entryItem(e domain.TranscriptEntry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: e.PK},
		"SK":             &types.AttributeValueMemberS{Value: e.SK},
		"conversationId": &types.AttributeValueMemberN{Value: strconv.FormatInt(e.ConversationID, 10)},
		"userId":         &types.AttributeValueMemberN{Value: strconv.FormatInt(e.UserID, 10)},
		"role":           &types.AttributeValueMemberS{Value: string(e.Role)},
		"content":        &types.AttributeValueMemberS{Value: e.Content},
		"createdAt":      &types.AttributeValueMemberS{Value: e.CreatedAt},
	}
}

func metaItem(meta domain.ConversationMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: meta.PK},
		"SK":             &types.AttributeValueMemberS{Value: meta.SK},
		"conversationId": &types.AttributeValueMemberN{Value: strconv.FormatInt(meta.ConversationID, 10)},
		"userId":         &types.AttributeValueMemberN{Value: strconv.FormatInt(meta.UserID, 10)},
		"createdAt":      &types.AttributeValueMemberS{Value: meta.CreatedAt},
		"lastActivity":   &types.AttributeValueMemberS{Value: meta.LastActivity},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
