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

	"commission-intake/internal/domain"
)

const (
	skProfile          = "PROFILE"
	skPrefixCommission = "COMMISSION#"
	defaultCustomer    = "Customer"
)

// ErrDuplicateCustomer is returned when a customer record for the email was
// written between the caller's lookup and its create.
var ErrDuplicateCustomer = errors.New("repository: customer already exists for email")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps a single DynamoDB table holding makers, customers and
// commissions.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

var (
	now   = func() time.Time { return time.Now().UTC() }
	newID = func() string { return uuid.NewString() }
)

func makerPK(handle string) string {
	return "MAKER#" + handle
}

func customerPK(email string) string {
	return "CUSTOMER#" + email
}

// queuePK groups a maker's commissions under one partition.
func queuePK(makerID string) string {
	return "QUEUE#" + makerID
}

// commissionSK sorts commissions chronologically; the id breaks ties.
func commissionSK(ts time.Time, id string) string {
	return skPrefixCommission + ts.UTC().Format(time.RFC3339Nano) + "#" + id
}

// GetMakerByHandle loads a maker profile. The bool is false when no maker
// has the handle.
func (c *Client) GetMakerByHandle(ctx context.Context, handle string) (domain.Maker, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       profileKey(makerPK(handle)),
	})
	if err != nil {
		return domain.Maker{}, false, fmt.Errorf("repository: GetMakerByHandle get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Maker{}, false, nil
	}
	maker, err := itemToMaker(out.Item)
	if err != nil {
		return domain.Maker{}, false, fmt.Errorf("repository: GetMakerByHandle unmarshal: %w", err)
	}
	return maker, true, nil
}

// PutMaker writes or replaces a maker profile.
func (c *Client) PutMaker(ctx context.Context, maker domain.Maker) error {
	if strings.TrimSpace(maker.Handle) == "" {
		return errors.New("repository: PutMaker: handle is required")
	}
	if maker.ID == "" {
		maker.ID = newID()
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      makerItem(maker),
	})
	if err != nil {
		return fmt.Errorf("repository: PutMaker: %w", err)
	}
	return nil
}

// FindCustomerByEmail looks up a customer by exact email match.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (domain.Customer, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            profileKey(customerPK(email)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Customer{}, false, fmt.Errorf("repository: FindCustomerByEmail get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Customer{}, false, nil
	}
	customer, err := itemToCustomer(out.Item)
	if err != nil {
		return domain.Customer{}, false, fmt.Errorf("repository: FindCustomerByEmail unmarshal: %w", err)
	}
	return customer, true, nil
}

// CreateCustomer inserts a customer keyed by email. An empty name is stored
// as "Customer". The write is conditional, so a concurrent create for the
// same email fails with ErrDuplicateCustomer instead of overwriting.
func (c *Client) CreateCustomer(ctx context.Context, in domain.NewCustomer) (domain.Customer, error) {
	if strings.TrimSpace(in.Email) == "" {
		return domain.Customer{}, errors.New("repository: CreateCustomer: email is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = defaultCustomer
	}
	customer := domain.Customer{
		ID:        newID(),
		Name:      name,
		Email:     in.Email,
		CreatedAt: now(),
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                customerItem(customer),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return domain.Customer{}, fmt.Errorf("repository: CreateCustomer: %w", ErrDuplicateCustomer)
		}
		return domain.Customer{}, fmt.Errorf("repository: CreateCustomer: %w", err)
	}
	return customer, nil
}

// CreateCommission inserts a commission into its maker's queue partition.
func (c *Client) CreateCommission(ctx context.Context, in domain.NewCommission) (domain.Commission, error) {
	if in.MakerID == "" || in.CustomerID == "" {
		return domain.Commission{}, errors.New("repository: CreateCommission: maker and customer ids are required")
	}
	status := in.Status
	if status == "" {
		status = domain.StatusPending
	}
	commission := domain.Commission{
		ID:          newID(),
		MakerID:     in.MakerID,
		CustomerID:  in.CustomerID,
		Title:       in.Title,
		Description: in.Description,
		Status:      status,
		ChatHistory: in.ChatHistory,
		CreatedAt:   now(),
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                commissionItem(commission),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return domain.Commission{}, fmt.Errorf("repository: CreateCommission: %w", err)
	}
	return commission, nil
}

// ListMakerCommissions returns up to limit commissions, newest first.
func (c *Client) ListMakerCommissions(ctx context.Context, makerID string, limit int) ([]domain.Commission, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: queuePK(makerID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixCommission},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: ListMakerCommissions query: %w", err)
	}

	commissions := make([]domain.Commission, 0, len(out.Items))
	for _, item := range out.Items {
		commission, err := itemToCommission(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListMakerCommissions unmarshal: %w", err)
		}
		commissions = append(commissions, commission)
	}
	return commissions, nil
}

func profileKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: skProfile},
	}
}

func makerItem(m domain.Maker) map[string]types.AttributeValue {
	categories := make([]types.AttributeValue, 0, len(m.Categories))
	for _, c := range m.Categories {
		categories = append(categories, &types.AttributeValueMemberS{Value: c})
	}
	return map[string]types.AttributeValue{
		"PK":                &types.AttributeValueMemberS{Value: makerPK(m.Handle)},
		"SK":                &types.AttributeValueMemberS{Value: skProfile},
		"id":                &types.AttributeValueMemberS{Value: m.ID},
		"handle":            &types.AttributeValueMemberS{Value: m.Handle},
		"name":              &types.AttributeValueMemberS{Value: m.Name},
		"email":             &types.AttributeValueMemberS{Value: m.Email},
		"description":       &types.AttributeValueMemberS{Value: m.Description},
		"location":          &types.AttributeValueMemberS{Value: m.Location},
		"categories":        &types.AttributeValueMemberL{Value: categories},
		"completedProjects": &types.AttributeValueMemberN{Value: strconv.Itoa(m.CompletedProjects)},
	}
}

func itemToMaker(item map[string]types.AttributeValue) (domain.Maker, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Maker{}, err
	}
	handle, err := strAttr(item, "handle")
	if err != nil {
		return domain.Maker{}, err
	}
	name, _ := strAttr(item, "name")
	email, _ := strAttr(item, "email")
	description, _ := strAttr(item, "description")
	location, _ := strAttr(item, "location")
	completed, _ := intAttr(item, "completedProjects")
	categories, err := strListAttr(item, "categories")
	if err != nil {
		return domain.Maker{}, err
	}
	return domain.Maker{
		ID:                id,
		Handle:            handle,
		Name:              name,
		Email:             email,
		Description:       description,
		Location:          location,
		Categories:        categories,
		CompletedProjects: completed,
	}, nil
}

func customerItem(c domain.Customer) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: customerPK(c.Email)},
		"SK":        &types.AttributeValueMemberS{Value: skProfile},
		"id":        &types.AttributeValueMemberS{Value: c.ID},
		"name":      &types.AttributeValueMemberS{Value: c.Name},
		"email":     &types.AttributeValueMemberS{Value: c.Email},
		"createdAt": &types.AttributeValueMemberS{Value: c.CreatedAt.Format(time.RFC3339Nano)},
	}
}

func itemToCustomer(item map[string]types.AttributeValue) (domain.Customer, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Customer{}, err
	}
	email, err := strAttr(item, "email")
	if err != nil {
		return domain.Customer{}, err
	}
	name, _ := strAttr(item, "name")
	createdAt, _ := timeAttr(item, "createdAt")
	return domain.Customer{ID: id, Name: name, Email: email, CreatedAt: createdAt}, nil
}

func commissionItem(c domain.Commission) map[string]types.AttributeValue {
	history := make([]types.AttributeValue, 0, len(c.ChatHistory))
	for _, m := range c.ChatHistory {
		history = append(history, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"role":    &types.AttributeValueMemberS{Value: string(m.Role)},
			"content": &types.AttributeValueMemberS{Value: m.Content},
		}})
	}
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: queuePK(c.MakerID)},
		"SK":          &types.AttributeValueMemberS{Value: commissionSK(c.CreatedAt, c.ID)},
		"id":          &types.AttributeValueMemberS{Value: c.ID},
		"makerId":     &types.AttributeValueMemberS{Value: c.MakerID},
		"customerId":  &types.AttributeValueMemberS{Value: c.CustomerID},
		"title":       &types.AttributeValueMemberS{Value: c.Title},
		"description": &types.AttributeValueMemberS{Value: c.Description},
		"status":      &types.AttributeValueMemberS{Value: string(c.Status)},
		"chatHistory": &types.AttributeValueMemberL{Value: history},
		"createdAt":   &types.AttributeValueMemberS{Value: c.CreatedAt.Format(time.RFC3339Nano)},
	}
}

func itemToCommission(item map[string]types.AttributeValue) (domain.Commission, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Commission{}, err
	}
	makerID, err := strAttr(item, "makerId")
	if err != nil {
		return domain.Commission{}, err
	}
	customerID, err := strAttr(item, "customerId")
	if err != nil {
		return domain.Commission{}, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.Commission{}, err
	}
	title, _ := strAttr(item, "title")
	description, _ := strAttr(item, "description")
	createdAt, _ := timeAttr(item, "createdAt")
	history, err := historyAttr(item, "chatHistory")
	if err != nil {
		return domain.Commission{}, err
	}
	return domain.Commission{
		ID:          id,
		MakerID:     makerID,
		CustomerID:  customerID,
		Title:       title,
		Description: description,
		Status:      domain.CommissionStatus(status),
		ChatHistory: history,
		CreatedAt:   createdAt,
	}, nil
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

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return ts, nil
}

// strListAttr accepts a list of strings or a string set; absent is empty.
func strListAttr(item map[string]types.AttributeValue, key string) ([]string, error) {
	v, ok := item[key]
	if !ok {
		return nil, nil
	}
	switch av := v.(type) {
	case *types.AttributeValueMemberSS:
		return append([]string(nil), av.Value...), nil
	case *types.AttributeValueMemberL:
		out := make([]string, 0, len(av.Value))
		for i, e := range av.Value {
			s, ok := e.(*types.AttributeValueMemberS)
			if !ok {
				return nil, fmt.Errorf("repository: attribute %q[%d] is not a string", key, i)
			}
			out = append(out, s.Value)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("repository: attribute %q is not a string list", key)
	}
}

func historyAttr(item map[string]types.AttributeValue, key string) ([]domain.Message, error) {
	v, ok := item[key]
	if !ok {
		return nil, nil
	}
	l, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a list", key)
	}
	out := make([]domain.Message, 0, len(l.Value))
	for i, e := range l.Value {
		m, ok := e.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("repository: attribute %q[%d] is not a map", key, i)
		}
		role, err := strAttr(m.Value, "role")
		if err != nil {
			return nil, err
		}
		content, err := strAttr(m.Value, "content")
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Message{Role: domain.Role(role), Content: content})
	}
	return out, nil
}
