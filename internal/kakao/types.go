package kakao

// User is the /v2/user/me payload, trimmed to the stable fields.
type User struct {
	ID           int64             `json:"id"`
	ConnectedAt  string            `json:"connected_at,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
	KakaoAccount *Account          `json:"kakao_account,omitempty"`
}

// Account is the kakao_account section of User.
type Account struct {
	Email       string   `json:"email,omitempty"`
	AgeRange    string   `json:"age_range,omitempty"`
	Birthday    string   `json:"birthday,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Profile     *Profile `json:"profile,omitempty"`
	IsEmailAuth bool     `json:"is_email_verified,omitempty"`
}

type Profile struct {
	Nickname        string `json:"nickname,omitempty"`
	ThumbnailURL    string `json:"thumbnail_image_url,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// Nickname returns the best available display name.
func (u *User) Nickname() string {
	if u.KakaoAccount != nil && u.KakaoAccount.Profile != nil && u.KakaoAccount.Profile.Nickname != "" {
		return u.KakaoAccount.Profile.Nickname
	}

	return u.Properties["nickname"]
}

// TokenInfo is the /v1/user/access_token_info payload. ExpiresIn is in seconds.
type TokenInfo struct {
	ID        int64 `json:"id"`
	ExpiresIn int64 `json:"expires_in"`
	AppID     int64 `json:"app_id"`
}

// UserID is returned by logout and unlink.
type UserID struct {
	ID int64 `json:"id"`
}

// StoryProfile is the /v1/api/story/profile payload.
type StoryProfile struct {
	Nickname        string `json:"nickName"`
	ProfileImageURL string `json:"profileImageURL,omitempty"`
	ThumbnailURL    string `json:"thumbnailURL,omitempty"`
	BgImageURL      string `json:"bgImageURL,omitempty"`
	Permalink       string `json:"permalink,omitempty"`
	Birthday        string `json:"birthday,omitempty"`
	BirthdayType    string `json:"birthdayType,omitempty"`
}

type isStoryUserResponse struct {
	IsStoryUser bool `json:"isStoryUser"`
}

// StoryImage is one image of a photo story, in several sizes.
type StoryImage struct {
	XLarge   string `json:"xlarge,omitempty"`
	Large    string `json:"large,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Small    string `json:"small,omitempty"`
	Original string `json:"original,omitempty"`
}

// MyStory is one story of the current user. A post response fills only ID.
type MyStory struct {
	ID           string       `json:"id"`
	URL          string       `json:"url,omitempty"`
	MediaType    string       `json:"media_type,omitempty"`
	CreatedAt    string       `json:"created_at,omitempty"`
	CommentCount int          `json:"comment_count,omitempty"`
	LikeCount    int          `json:"like_count,omitempty"`
	Content      string       `json:"content,omitempty"`
	Permission   string       `json:"permission,omitempty"`
	Media        []StoryImage `json:"media,omitempty"`
}

// Type returns the story's kind, NotSupported for unknown media types.
func (s *MyStory) Type() StoryType {
	return StoryTypeOf(s.MediaType)
}

// LinkInfo is the scraped preview of a URL, posted back as-is in a link story.
type LinkInfo struct {
	URL          string   `json:"url"`
	RequestedURL string   `json:"requested_url,omitempty"`
	Host         string   `json:"host,omitempty"`
	Title        string   `json:"title,omitempty"`
	Images       []string `json:"image,omitempty"`
	Description  string   `json:"description,omitempty"`
	Section      string   `json:"section,omitempty"`
	Type         string   `json:"type,omitempty"`
}

// StoryType is the kind of story post.
type StoryType int

const (
	StoryTypeNotSupported StoryType = iota
	StoryTypeNote
	StoryTypePhoto
	StoryTypeLink
)

var storyTypeNames = map[string]StoryType{
	"NOTE":  StoryTypeNote,
	"PHOTO": StoryTypePhoto,
	"LINK":  StoryTypeLink,
}

// StoryTypeOf maps a wire name to a StoryType. Unknown names map to
// StoryTypeNotSupported.
func StoryTypeOf(name string) StoryType {
	if t, ok := storyTypeNames[name]; ok {
		return t
	}

	return StoryTypeNotSupported
}

func (t StoryType) String() string {
	for name, v := range storyTypeNames {
		if v == t {
			return name
		}
	}

	return "NOT_SUPPORTED"
}

// postPath is the endpoint a story of this type is posted to.
func (t StoryType) postPath() string {
	switch t {
	case StoryTypeNote:
		return "/v1/api/story/post/note"
	case StoryTypePhoto:
		return "/v1/api/story/post/photo"
	case StoryTypeLink:
		return "/v1/api/story/post/link"
	default:
		return ""
	}
}

// Permission is who may see a story.
type Permission string

const (
	PermissionPublic  Permission = "A"
	PermissionFriends Permission = "F"
	PermissionOnlyMe  Permission = "M"
)

// PostOptions are the optional fields shared by all story posts. The
// zero value posts publicly with sharing enabled.
type PostOptions struct {
	Permission         Permission
	DisableShare       bool
	AndroidExecParam   string
	IOSExecParam       string
	AndroidMarketParam string
	IOSMarketParam     string
}
