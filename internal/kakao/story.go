package kakao

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tonimelisma/kakao-go/internal/apierr"
	"github.com/tonimelisma/kakao-go/internal/multipart"
	"github.com/tonimelisma/kakao-go/internal/transport"
)

// MaxPostContentLength is the longest story text the server accepts, in characters.
const MaxPostContentLength = 2048

const (
	storyProfilePath   = "/v1/api/story/profile"
	isStoryUserPath    = "/v1/api/story/isstoryuser"
	storyUploadPath    = "/v1/api/story/upload/multi"
	myStoryPath        = "/v1/api/story/mystory"
	myStoriesPath      = "/v1/api/story/mystories"
	deleteMyStoryPath  = "/v1/api/story/delete/mystory"
	linkInfoPath       = "/v1/api/story/linkinfo"
	uploadFieldName    = "file"
	secureResourceFlag = "secure_resource"
)

// StoryProfile fetches the user's story profile. With secure set, image
// URLs are https.
func (c *Client) StoryProfile(ctx context.Context, secure bool) (*StoryProfile, error) {
	params := url.Values{}
	if secure {
		params.Set(secureResourceFlag, "true")
	}

	return DoJSON[*StoryProfile](ctx, c, &transport.Request{
		Method: http.MethodGet,
		URL:    c.URL(storyProfilePath),
		Params: params,
	})
}

// IsStoryUser reports whether the user has a story account.
func (c *Client) IsStoryUser(ctx context.Context) (bool, error) {
	r, err := DoJSON[isStoryUserResponse](ctx, c, &transport.Request{
		Method: http.MethodGet,
		URL:    c.URL(isStoryUserPath),
	})

	return r.IsStoryUser, err
}

// ValidateNote checks a note story's content.
func ValidateNote(content string) error {
	if content == "" {
		return apierr.Parameter("kakao: story content is empty")
	}

	return validateContent(content)
}

func validateContent(content string) error {
	if n := utf8.RuneCountInString(content); n > MaxPostContentLength {
		return apierr.Parameter("kakao: story content is %d characters, limit is %d", n, MaxPostContentLength)
	}

	return nil
}

// ValidateLink checks a link story's inputs.
func ValidateLink(info *LinkInfo, content string) error {
	if info == nil || info.URL == "" {
		return apierr.Parameter("kakao: link info is empty")
	}

	return validateContent(content)
}

// ValidatePhoto checks a photo story's inputs.
func ValidatePhoto(paths []string, content string) error {
	if len(paths) == 0 {
		return apierr.Parameter("kakao: image list is empty")
	}

	return validateContent(content)
}

// ValidateStoryID checks a story id.
func ValidateStoryID(id string) error {
	if id == "" {
		return apierr.Parameter("kakao: story id is empty")
	}

	return nil
}

// ValidateLinkURL checks a URL to scrape.
func ValidateLinkURL(u string) error {
	if !strings.HasPrefix(u, "http") {
		return apierr.Parameter("kakao: link URL %q must start with http", u)
	}

	return nil
}

// PostNote posts a text story.
func (c *Client) PostNote(ctx context.Context, content string, opts PostOptions) (*MyStory, error) {
	if err := ValidateNote(content); err != nil {
		return nil, err
	}

	params := opts.values()
	params.Set("content", content)

	return c.post(ctx, StoryTypeNote, params)
}

// PostLink posts a link story from a LinkInfo fetched with LinkInfo.
func (c *Client) PostLink(ctx context.Context, info *LinkInfo, content string, opts PostOptions) (*MyStory, error) {
	if err := ValidateLink(info, content); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(info)
	if err != nil {
		return nil, apierr.Parameter("kakao: encoding link info: %v", err)
	}

	params := opts.values()
	params.Set("link_info", string(raw))

	if content != "" {
		params.Set("content", content)
	}

	return c.post(ctx, StoryTypeLink, params)
}

// UploadImages uploads local image files and returns the server paths
// to reference in a photo story.
func (c *Client) UploadImages(ctx context.Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, apierr.Parameter("kakao: image list is empty")
	}

	parts := make([]multipart.Part, 0, len(paths))

	for _, p := range paths {
		part, err := multipart.NewFilePart(uploadFieldName, p)
		if err != nil {
			return nil, apierr.Parameter("kakao: image %s: %v", p, err)
		}

		parts = append(parts, part)
	}

	return DoJSON[[]string](ctx, c, &transport.Request{
		Method: http.MethodPost,
		URL:    c.URL(storyUploadPath),
		Parts:  parts,
	})
}

// PostPhoto uploads the images, then posts them as one photo story.
func (c *Client) PostPhoto(ctx context.Context, paths []string, content string, opts PostOptions) (*MyStory, error) {
	if err := ValidatePhoto(paths, content); err != nil {
		return nil, err
	}

	uploaded, err := c.UploadImages(ctx, paths)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(uploaded)
	if err != nil {
		return nil, apierr.Transport(fmt.Errorf("kakao: encoding image list: %w", err))
	}

	params := opts.values()
	params.Set("image_url_list", string(raw))

	if content != "" {
		params.Set("content", content)
	}

	return c.post(ctx, StoryTypePhoto, params)
}

func (c *Client) post(ctx context.Context, t StoryType, params url.Values) (*MyStory, error) {
	return DoJSON[*MyStory](ctx, c, &transport.Request{
		Method: http.MethodPost,
		URL:    c.URL(t.postPath()),
		Params: params,
	})
}

// MyStory fetches one of the user's stories.
func (c *Client) MyStory(ctx context.Context, id string) (*MyStory, error) {
	if err := ValidateStoryID(id); err != nil {
		return nil, err
	}

	return DoJSON[*MyStory](ctx, c, &transport.Request{
		Method: http.MethodGet,
		URL:    c.URL(myStoryPath),
		Params: url.Values{"id": {id}},
	})
}

// MyStories lists the user's stories, newest first, starting after
// lastID when it is set.
func (c *Client) MyStories(ctx context.Context, lastID string) ([]MyStory, error) {
	params := url.Values{}
	if lastID != "" {
		params.Set("last_id", lastID)
	}

	return DoJSON[[]MyStory](ctx, c, &transport.Request{
		Method: http.MethodGet,
		URL:    c.URL(myStoriesPath),
		Params: params,
	})
}

// DeleteMyStory deletes one of the user's stories.
func (c *Client) DeleteMyStory(ctx context.Context, id string) error {
	if err := ValidateStoryID(id); err != nil {
		return err
	}

	_, err := c.Do(ctx, &transport.Request{
		Method: http.MethodDelete,
		URL:    c.URL(deleteMyStoryPath),
		Params: url.Values{"id": {id}},
	})

	return err
}

// LinkInfo scrapes a URL into a preview suitable for PostLink.
func (c *Client) LinkInfo(ctx context.Context, rawURL string) (*LinkInfo, error) {
	if err := ValidateLinkURL(rawURL); err != nil {
		return nil, err
	}

	return DoJSON[*LinkInfo](ctx, c, &transport.Request{
		Method: http.MethodGet,
		URL:    c.URL(linkInfoPath),
		Params: url.Values{"url": {rawURL}},
	})
}

func (o PostOptions) values() url.Values {
	perm := o.Permission
	if perm == "" {
		perm = PermissionPublic
	}

	v := url.Values{}
	v.Set("permission", string(perm))
	v.Set("enable_share", strconv.FormatBool(!o.DisableShare))

	for k, val := range map[string]string{
		"android_exec_param":   o.AndroidExecParam,
		"ios_exec_param":       o.IOSExecParam,
		"android_market_param": o.AndroidMarketParam,
		"ios_market_param":     o.IOSMarketParam,
	} {
		if val != "" {
			v.Set(k, val)
		}
	}

	return v
}
