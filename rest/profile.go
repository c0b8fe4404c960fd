////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const (
	profileGetPath    = "/ourlog/profile/get/"
	profileUploadPath = "/ourlog/profile/upload-image/"
	uploadFormField   = "file"
)

// UserID is an application user ID. The backend sends it either as a bare
// number or wrapped as {"userId": n}; both decode to the same value.
type UserID int64

// String returns the decimal form used as the messaging user ID.
func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// UnmarshalJSON accepts a number, a numeric string or {"userId": n}.
func (id *UserID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		v, err := n.Int64()
		if err != nil {
			return errors.Wrapf(err, "invalid user ID %s", data)
		}
		*id = UserID(v)
		return nil
	}

	var wrapped struct {
		UserID *UserID `json:"userId"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return errors.Wrapf(err, "invalid user ID %s", data)
	}
	if wrapped.UserID == nil {
		return errors.Errorf("user ID object has no userId: %s", data)
	}
	*id = *wrapped.UserID
	return nil
}

// Profile is the public profile of a user.
type Profile struct {
	ProfileID          int64  `json:"profileId,omitempty"`
	UserID             UserID `json:"userId"`
	Nickname           string `json:"nickname,omitempty"`
	Introduction       string `json:"introduction,omitempty"`
	OriginImagePath    string `json:"originImagePath,omitempty"`
	ThumbnailImagePath string `json:"thumbnailImagePath,omitempty"`
	Email              string `json:"email,omitempty"`
	Name               string `json:"name,omitempty"`
	FollowCount        int    `json:"followCnt,omitempty"`
	FollowingCount     int    `json:"followingCnt,omitempty"`
}

// AvatarPath returns the thumbnail if present, otherwise the original image.
func (p Profile) AvatarPath() string {
	if p.ThumbnailImagePath != "" {
		return p.ThumbnailImagePath
	}
	return p.OriginImagePath
}

// UploadResult describes a stored image.
type UploadResult struct {
	FileName     string `json:"fileName"`
	UUID         string `json:"uuid"`
	FolderPath   string `json:"folderPath"`
	ImageURL     string `json:"imageURL"`
	ThumbnailURL string `json:"thumbnailURL"`
}

// FetchProfile returns the profile of the given user.
func (c *Client) FetchProfile(ctx context.Context, userID UserID) (Profile, error) {
	var p Profile
	err := c.doJSON(ctx, http.MethodGet, profileGetPath+userID.String(), nil, &p)
	return p, err
}

// UploadProfileImage scales the image down to the configured thumbnail
// width, keeping its aspect ratio and format, and uploads it as the user's
// profile picture.
func (c *Client) UploadProfileImage(ctx context.Context, userID UserID,
	fileName string, img io.Reader) (UploadResult, error) {
	data, err := thumbnail(img, c.params.ThumbnailSize)
	if err != nil {
		return UploadResult{}, err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile(uploadFormField, fileName)
	if err != nil {
		return UploadResult{}, errors.Wrap(err, "failed to create form file")
	}
	if _, err = part.Write(data); err != nil {
		return UploadResult{}, errors.Wrap(err, "failed to write form file")
	}
	if err = form.Close(); err != nil {
		return UploadResult{}, errors.Wrap(err, "failed to close form")
	}

	var res UploadResult
	err = c.do(ctx, http.MethodPost, profileUploadPath+userID.String(),
		form.FormDataContentType(), &body, &res)
	return res, err
}

// thumbnail decodes img and re-encodes it no wider than width. GIFs are
// re-encoded as PNG.
func thumbnail(img io.Reader, width uint) ([]byte, error) {
	src, format, err := image.Decode(img)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode profile image")
	}

	if width > 0 && uint(src.Bounds().Dx()) > width {
		jww.DEBUG.Printf("[REST] Scaling %s profile image from %dx%d to "+
			"width %d", format, src.Bounds().Dx(), src.Bounds().Dy(), width)
		src = resize.Resize(width, 0, src, resize.Lanczos3)
	}

	var out bytes.Buffer
	if format == "jpeg" {
		err = jpeg.Encode(&out, src, &jpeg.Options{Quality: 90})
	} else {
		err = png.Encode(&out, src)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s profile image",
			format)
	}
	return out.Bytes(), nil
}
