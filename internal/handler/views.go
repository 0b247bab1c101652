package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/real-estate-listings/internal/model"
	"github.com/iliyamo/real-estate-listings/internal/storage"
)

// ListingView is the JSON shape of a listing. Featured reflects the
// promotion window at response time, not the stored flag.
type ListingView struct {
	ID            uint64      `json:"id"`
	OwnerID       uint64      `json:"owner_id,omitempty"`
	Title         string      `json:"title"`
	City          string      `json:"city"`
	Address       string      `json:"address"`
	Type          string      `json:"listing_type"`
	Price         float64     `json:"price"`
	Bedrooms      int         `json:"bedrooms"`
	Bathrooms     int         `json:"bathrooms"`
	AreaSqM       int         `json:"area_sq_m"`
	Description   string      `json:"description"`
	Status        string      `json:"status,omitempty"`
	Sold          bool        `json:"is_sold"`
	SoldAt        *time.Time  `json:"sold_at,omitempty"`
	Featured      bool        `json:"is_featured"`
	FeaturedUntil *time.Time  `json:"featured_until,omitempty"`
	Images        []ImageView `json:"images,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

type ImageView struct {
	ID           uint64 `json:"id"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

type UserView struct {
	ID     uint64 `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Plan   string `json:"plan"`
	Banned bool   `json:"is_banned"`
}

func userView(u model.User) UserView {
	return UserView{ID: u.ID, Email: u.Email, Role: u.Role, Plan: string(u.Plan), Banned: u.Banned}
}

// ownerView includes moderation fields for the owner and admins.
func ownerView(l model.Listing, now time.Time) ListingView {
	v := publicView(l, now)
	v.OwnerID = l.OwnerID
	v.Status = string(l.Status)
	if l.Featured {
		v.FeaturedUntil = l.FeaturedUntil
	}
	return v
}

func publicView(l model.Listing, now time.Time) ListingView {
	v := ListingView{
		ID: l.ID, Title: l.Title, City: l.City, Address: l.Address, Type: l.Type,
		Price: l.Price, Bedrooms: l.Bedrooms, Bathrooms: l.Bathrooms, AreaSqM: l.AreaSqM,
		Description: l.Description, Sold: l.Sold, SoldAt: l.SoldAt,
		Featured: l.IsCurrentlyFeatured(now), CreatedAt: l.CreatedAt,
	}
	if v.Featured {
		v.FeaturedUntil = l.FeaturedUntil
	}
	return v
}

func ownerViews(items []model.Listing, now time.Time) []ListingView {
	out := make([]ListingView, 0, len(items))
	for _, l := range items {
		out = append(out, ownerView(l, now))
	}
	return out
}

func publicViews(items []model.Listing, now time.Time) []ListingView {
	out := make([]ListingView, 0, len(items))
	for _, l := range items {
		out = append(out, publicView(l, now))
	}
	return out
}

// imageViews resolves storage keys to URLs. Thumbnails are produced in the
// background, so their URL may not resolve yet.
func imageViews(ctx context.Context, files Linker, log *slog.Logger, imgs []model.ListingImage) []ImageView {
	out := make([]ImageView, 0, len(imgs))
	for _, img := range imgs {
		v := ImageView{ID: img.ID}
		if files != nil {
			u, err := files.URL(ctx, img.FileName)
			if err != nil {
				log.Warn("resolve image url failed", "key", img.FileName, "err", err)
				continue
			}
			v.URL = u
			if t, err := files.URL(ctx, storage.ThumbnailKey(img.FileName)); err == nil {
				v.ThumbnailURL = t
			}
		}
		out = append(out, v)
	}
	return out
}
