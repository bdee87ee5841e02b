// Package odesli is a client for the song.link cross-platform link resolution API.
package odesli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"crossfade/pkg/platform"
)

// Entity types reported by the API.
const (
	EntitySong           = "song"
	EntityAlbum          = "album"
	EntityPodcast        = "podcast"
	EntityPodcastShow    = "podcastShow"
	EntityPodcastEpisode = "podcastEpisode"
)

// Response is the body of a successful links lookup.
type Response struct {
	EntityUniqueID     string                  `json:"entityUniqueId,omitempty"`
	UserCountry        string                  `json:"userCountry,omitempty"`
	PageURL            string                  `json:"pageUrl,omitempty"`
	EntitiesByUniqueID map[string]Entity       `json:"entitiesByUniqueId,omitempty"`
	LinksByPlatform    map[string]PlatformLink `json:"linksByPlatform,omitempty"`

	// entityOrder keeps the document order of entitiesByUniqueId keys.
	entityOrder []string
}

// Entity is the API's canonical representation of a song, album, podcast or episode.
type Entity struct {
	ID              string   `json:"id,omitempty"`
	Type            string   `json:"type,omitempty"`
	Title           string   `json:"title,omitempty"`
	ArtistName      string   `json:"artistName,omitempty"`
	ThumbnailURL    string   `json:"thumbnailUrl,omitempty"`
	ThumbnailWidth  int      `json:"thumbnailWidth,omitempty"`
	ThumbnailHeight int      `json:"thumbnailHeight,omitempty"`
	APIProvider     string   `json:"apiProvider,omitempty"`
	Platforms       []string `json:"platforms,omitempty"`
}

// PlatformLink is one platform's link to an entity.
type PlatformLink struct {
	EntityUniqueID      string `json:"entityUniqueId,omitempty"`
	URL                 string `json:"url,omitempty"`
	NativeAppURIMobile  string `json:"nativeAppUriMobile,omitempty"`
	NativeAppURIDesktop string `json:"nativeAppUriDesktop,omitempty"`
}

// UnmarshalJSON decodes the response and records the order of entity keys.
func (r *Response) UnmarshalJSON(data []byte) error {
	type plain Response
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = Response(decoded)

	r.entityOrder = nil
	gjson.GetBytes(data, "entitiesByUniqueId").ForEach(func(key, _ gjson.Result) bool {
		r.entityOrder = append(r.entityOrder, key.String())
		return true
	})
	return nil
}

// EntityID returns the explicit entity id, or the first key of the entity map.
func (r *Response) EntityID() string {
	if r.EntityUniqueID != "" {
		return r.EntityUniqueID
	}
	for _, key := range r.entityOrder {
		if _, ok := r.EntitiesByUniqueID[key]; ok {
			return key
		}
	}
	// Responses built in code carry no document order.
	for key := range r.EntitiesByUniqueID {
		return key
	}
	return ""
}

// Entity returns the primary entity of the response.
func (r *Response) Entity() (Entity, bool) {
	id := r.EntityID()
	if id == "" {
		return Entity{}, false
	}
	entity, ok := r.EntitiesByUniqueID[id]
	return entity, ok
}

// MergeAppleMusicLinks folds an "itunes" link into "appleMusic" when the latter is missing
// and drops the "itunes" key either way. The input map is not modified.
func MergeAppleMusicLinks(links map[string]PlatformLink) map[string]PlatformLink {
	merged := make(map[string]PlatformLink, len(links))
	for key, link := range links {
		merged[key] = link
	}

	itunes, ok := merged[platform.KeyITunes]
	if !ok {
		return merged
	}
	if _, exists := merged[platform.KeyAppleMusic]; !exists {
		merged[platform.KeyAppleMusic] = itunes
	}
	delete(merged, platform.KeyITunes)
	return merged
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("odesli returned status %d %s", e.Code, e.Status)
}

// Unsupported reports whether the API rejected the URL shape itself.
func (e *StatusError) Unsupported() bool {
	return e.Code == http.StatusBadRequest || e.Code == http.StatusMethodNotAllowed
}
