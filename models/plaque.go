package models

import (
	"fmt"
	"regexp"
	"time"
)

// Image size presets, in pixels, for the serving URLs.
const (
	TinySizePx      = 100
	ThumbnailSizePx = 300
	DisplaySizePx   = 1024
	BigSizePx       = 4096
)

// MaxTitleLen is the longest title the store will accept.
const MaxTitleLen = 1499

// GeoPt is a latitude/longitude pair in decimal degrees.
type GeoPt struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Plaque represents a user-submitted plaque entry: a photo, a title, a
// free-text description, tags, and a geographic location. Slug is the
// URL identifier, unique within a plaqueset scope.
type Plaque struct {
	Slug        string    `json:"slug" bson:"slug"`
	Scope       string    `json:"scope" bson:"scope"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	Location    GeoPt     `json:"location" bson:"location"`
	Pic         string    `json:"pic,omitempty" bson:"pic,omitempty"`
	ImgURL      string    `json:"img_url,omitempty" bson:"img_url,omitempty"`
	ImgRot      int       `json:"img_rot,omitempty" bson:"img_rot,omitempty"`
	Tags        []string  `json:"tags,omitempty" bson:"tags,omitempty"`
	Approved    bool      `json:"approved" bson:"approved"`
	CreatedOn   time.Time `json:"created_on" bson:"created_on"`
	CreatedBy   string    `json:"created_by,omitempty" bson:"created_by,omitempty"`
	UpdatedOn   time.Time `json:"updated_on" bson:"updated_on"`
	UpdatedBy   string    `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
	OldSiteID   int64     `json:"old_site_id,omitempty" bson:"old_site_id,omitempty"`
}

// FeaturedPlaque records which plaque is currently featured on the
// front page. The newest entry wins.
type FeaturedPlaque struct {
	Slug      string    `json:"slug" bson:"slug"`
	CreatedOn time.Time `json:"created_on" bson:"created_on"`
}

// PageURL is this plaque's slug-based page path.
func (p *Plaque) PageURL() string {
	return "/plaque/" + p.Slug
}

// FullPageURL is the fully-qualified page URL under the given base.
func (p *Plaque) FullPageURL(baseURL string) string {
	return baseURL + p.PageURL()
}

// GmapsURL is a Google Maps link for this plaque's location.
func (p *Plaque) GmapsURL() string {
	return fmt.Sprintf(
		"http://maps.google.com/maps?&z=21&t=m&q=loc:%.8f+%.8f",
		p.Location.Lat, p.Location.Lng)
}

func (p *Plaque) imgURLSized(size int, crop bool) string {
	if p.ImgURL == "" {
		return ""
	}
	url := fmt.Sprintf("%s=s%d", p.ImgURL, size)
	if crop {
		url += "-c"
	}
	return url
}

// ImgURLTiny is a URL for a tiny image for map infowindow popups.
func (p *Plaque) ImgURLTiny() string { return p.imgURLSized(TinySizePx, true) }

// ImgURLThumbnail is a URL for a thumbnail-size image.
func (p *Plaque) ImgURLThumbnail() string { return p.imgURLSized(ThumbnailSizePx, true) }

// ImgURLDisplay is a URL for a display-size image.
func (p *Plaque) ImgURLDisplay() string { return p.imgURLSized(DisplaySizePx, false) }

// GeoJSON returns this plaque as a GeoJSON Feature. When summary is
// true only the fields needed for map markers are included.
func (p *Plaque) GeoJSON(summary bool) map[string]interface{} {
	props := map[string]interface{}{
		"title":          p.Title,
		"title_page_url": p.PageURL(),
		"img_url_tiny":   p.ImgURLTiny(),
	}
	if !summary {
		props["slug"] = p.Slug
		props["description"] = p.Description
		props["img_url"] = p.ImgURL
		props["tags"] = p.Tags
	}
	return map[string]interface{}{
		"type": "Feature",
		"geometry": map[string]interface{}{
			"type":        "Point",
			"coordinates": []float64{p.Location.Lng, p.Location.Lat},
		},
		"properties": props,
	}
}

// TweetText is the text for a tweet about this plaque.
func (p *Plaque) TweetText(baseURL string) string {
	return fmt.Sprintf("'%s' Always #readtheplaque %s", p.Title, p.FullPageURL(baseURL))
}

var submitterRegex = regexp.MustCompile(`(?s)Submitted by.*?(twitter\.com/|@)(\w+)\b`)

// SubmitterTweet builds a congratulations tweet for the plaque's
// submitter, if a handle can be found in the description. Returns ""
// when no handle is present.
func (p *Plaque) SubmitterTweet(baseURL string) string {
	m := submitterRegex.FindStringSubmatch(p.Description)
	if m == nil {
		return ""
	}
	return fmt.Sprintf(
		"@%s Your plaque has been selected by the random plaque generator! "+
			"Thanks again! #readtheplaque %s",
		m[2], p.FullPageURL(baseURL))
}

// TagFontSizes maps each tag of the given plaques to a display font
// size in px, bucketed by how often the tag occurs.
func TagFontSizes(plaques []*Plaque) map[string]int {
	counts := map[string]int{}
	for _, p := range plaques {
		if p == nil {
			continue
		}
		for _, t := range p.Tags {
			counts[t]++
		}
	}
	sizes := make(map[string]int, len(counts))
	for tag, count := range counts {
		switch {
		case count < 5:
			sizes[tag] = 10
		case count < 10:
			sizes[tag] = 13
		case count < 20:
			sizes[tag] = 16
		case count < 40:
			sizes[tag] = 19
		case count < 120:
			sizes[tag] = 22
		default:
			sizes[tag] = 25
		}
	}
	return sizes
}
