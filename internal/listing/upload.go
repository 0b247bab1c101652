package listing

import "net/http"

// MaxImageBytes is the largest accepted image file.
const MaxImageBytes = 5 << 20

var imageExt = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// Upload is one image file received from a client.
type Upload struct {
	Name string
	Data []byte
}

type checkedUpload struct {
	contentType string
	ext         string
	data        []byte
}

// checkUploads keeps the files whose sniffed type is an accepted image and
// whose size is within MaxImageBytes. The declared content type is ignored.
func checkUploads(files []Upload) (ok []checkedUpload, skipped int) {
	for _, f := range files {
		if len(f.Data) == 0 || len(f.Data) > MaxImageBytes {
			skipped++
			continue
		}
		ct := http.DetectContentType(f.Data)
		ext, accepted := imageExt[ct]
		if !accepted {
			skipped++
			continue
		}
		ok = append(ok, checkedUpload{contentType: ct, ext: ext, data: f.Data})
	}
	return ok, skipped
}
