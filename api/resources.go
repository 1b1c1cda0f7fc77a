package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/go-querystring/query"
	"github.com/jrsteele09/solugarde-client/users"
)

func (c *Client) ListGarderies(ctx context.Context, q GarderieQuery) (*PaginatedResponse[Garderie], error) {
	return list[Garderie](ctx, c, "/garderies", q)
}

func (c *Client) GetGarderie(ctx context.Context, id string) (*Garderie, error) {
	return get[Garderie](ctx, c, "/garderies/"+url.PathEscape(id))
}

func (c *Client) ListJobOffers(ctx context.Context, q JobOfferQuery) (*PaginatedResponse[JobOffer], error) {
	return list[JobOffer](ctx, c, "/job-offers", q)
}

func (c *Client) GetJobOffer(ctx context.Context, id string) (*JobOffer, error) {
	return get[JobOffer](ctx, c, "/job-offers/"+url.PathEscape(id))
}

func (c *Client) ListUsers(ctx context.Context, q UserQuery) (*PaginatedResponse[users.User], error) {
	return list[users.User](ctx, c, "/users", q)
}

func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var conversations []Conversation
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/conversations"}, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (c *Client) ConversationMessages(ctx context.Context, conversationID string, p Page) (*PaginatedResponse[Message], error) {
	return list[Message](ctx, c, "/conversations/"+url.PathEscape(conversationID)+"/messages", p)
}

// CreateMessage posts a message over REST, used when the gateway is unavailable
func (c *Client) CreateMessage(ctx context.Context, conversationID, body string) (*Message, error) {
	var msg Message
	req := Request{
		Method: http.MethodPost,
		Path:   "/messages",
		Body:   CreateMessageRequest{ConversationID: conversationID, Body: body},
	}
	if err := c.Do(ctx, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) MarkMessageRead(ctx context.Context, messageID string) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: "/messages/" + url.PathEscape(messageID) + "/read"}, nil)
}

func list[T any](ctx context.Context, c *Client, path string, params any) (*PaginatedResponse[T], error) {
	values, err := query.Values(params)
	if err != nil {
		return nil, fmt.Errorf("[Client.list] %s: %w", path, err)
	}
	var page PaginatedResponse[T]
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: values}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func get[T any](ctx context.Context, c *Client, path string) (*T, error) {
	var v T
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: path}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
