package kakao

import (
	"context"

	"github.com/tonimelisma/kakao-go/internal/taskqueue"
)

// Service is the asynchronous surface: each method validates its input on
// the caller's goroutine, then queues the request and returns a handle.
// Invalid input is reported synchronously and nothing is queued.
type Service struct {
	client *Client
	queue  *taskqueue.Queue
}

func NewService(c *Client, q *taskqueue.Queue) *Service {
	return &Service{client: c, queue: q}
}

func (s *Service) Client() *Client { return s.client }

func (s *Service) Me(cb taskqueue.Callback[*User]) (*taskqueue.Handle[*User], error) {
	return taskqueue.Submit(s.queue, s.client.Me, cb)
}

func (s *Service) AccessTokenInfo(cb taskqueue.Callback[*TokenInfo]) (*taskqueue.Handle[*TokenInfo], error) {
	return taskqueue.Submit(s.queue, s.client.AccessTokenInfo, cb)
}

func (s *Service) Logout(cb taskqueue.Callback[*UserID]) (*taskqueue.Handle[*UserID], error) {
	return taskqueue.Submit(s.queue, s.client.Logout, cb)
}

func (s *Service) Unlink(cb taskqueue.Callback[*UserID]) (*taskqueue.Handle[*UserID], error) {
	return taskqueue.Submit(s.queue, s.client.Unlink, cb)
}

func (s *Service) StoryProfile(secure bool, cb taskqueue.Callback[*StoryProfile]) (*taskqueue.Handle[*StoryProfile], error) {
	return taskqueue.Submit(s.queue, func(ctx context.Context) (*StoryProfile, error) {
		return s.client.StoryProfile(ctx, secure)
	}, cb)
}

func (s *Service) IsStoryUser(cb taskqueue.Callback[bool]) (*taskqueue.Handle[bool], error) {
	return taskqueue.Submit(s.queue, s.client.IsStoryUser, cb)
}

func (s *Service) PostNote(content string, opts PostOptions, cb taskqueue.Callback[*MyStory]) (*taskqueue.Handle[*MyStory], error) {
	if err := ValidateNote(content); err != nil {
		return nil, err
	}

	return taskqueue.Submit(s.queue, func(ctx context.Context) (*MyStory, error) {
		return s.client.PostNote(ctx, content, opts)
	}, cb)
}

func (s *Service) PostLink(info *LinkInfo, content string, opts PostOptions, cb taskqueue.Callback[*MyStory]) (*taskqueue.Handle[*MyStory], error) {
	if err := ValidateLink(info, content); err != nil {
		return nil, err
	}

	return taskqueue.Submit(s.queue, func(ctx context.Context) (*MyStory, error) {
		return s.client.PostLink(ctx, info, content, opts)
	}, cb)
}

func (s *Service) PostPhoto(paths []string, content string, opts PostOptions, cb taskqueue.Callback[*MyStory]) (*taskqueue.Handle[*MyStory], error) {
	if err := ValidatePhoto(paths, content); err != nil {
		return nil, err
	}

	paths = append([]string(nil), paths...)

	return taskqueue.Submit(s.queue, func(ctx context.Context) (*MyStory, error) {
		return s.client.PostPhoto(ctx, paths, content, opts)
	}, cb)
}

func (s *Service) MyStory(id string, cb taskqueue.Callback[*MyStory]) (*taskqueue.Handle[*MyStory], error) {
	if err := ValidateStoryID(id); err != nil {
		return nil, err
	}

	return taskqueue.Submit(s.queue, func(ctx context.Context) (*MyStory, error) {
		return s.client.MyStory(ctx, id)
	}, cb)
}

func (s *Service) MyStories(lastID string, cb taskqueue.Callback[[]MyStory]) (*taskqueue.Handle[[]MyStory], error) {
	return taskqueue.Submit(s.queue, func(ctx context.Context) ([]MyStory, error) {
		return s.client.MyStories(ctx, lastID)
	}, cb)
}

// DeleteMyStory reports success as true.
func (s *Service) DeleteMyStory(id string, cb taskqueue.Callback[bool]) (*taskqueue.Handle[bool], error) {
	if err := ValidateStoryID(id); err != nil {
		return nil, err
	}

	return taskqueue.Submit(s.queue, func(ctx context.Context) (bool, error) {
		if err := s.client.DeleteMyStory(ctx, id); err != nil {
			return false, err
		}

		return true, nil
	}, cb)
}

func (s *Service) LinkInfo(rawURL string, cb taskqueue.Callback[*LinkInfo]) (*taskqueue.Handle[*LinkInfo], error) {
	if err := ValidateLinkURL(rawURL); err != nil {
		return nil, err
	}

	return taskqueue.Submit(s.queue, func(ctx context.Context) (*LinkInfo, error) {
		return s.client.LinkInfo(ctx, rawURL)
	}, cb)
}
