package folio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/barasher/go-exiftool"
	"github.com/google/uuid"
	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// readExif fills in the title, description and keywords embedded in an image.
func readExif(path string, et *exiftool.Exiftool, il *Illustration) error {
	fis := et.ExtractMetadata(path)
	fi := fis[0]
	if fi.Err != nil {
		return fmt.Errorf("extract fail for %q: %w", path, fi.Err)
	}

	for k, v := range fi.Fields {
		klog.V(2).Infof("%q=%v\n", k, v)
	}

	var err error
	il.Title, err = fi.GetString("Headline")
	if err != nil {
		klog.V(2).Infof("unable to get headline: %v", err)
	}

	il.Description, err = fi.GetString("ImageDescription")
	if err != nil {
		klog.V(1).Infof("unable to get description for %s: %v", path, err)
	}

	il.Keywords, err = fi.GetStrings("Keywords")
	if err != nil {
		klog.V(2).Infof("unable to get keywords for %s: %v", path, err)
	}
	return nil
}

// IDFor returns a stable ID for an image URL.
func IDFor(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
}

// Find discovers images in dirs, relative to root. et may be nil, in which case
// no embedded metadata is read.
func Find(root string, dirs []string, et *exiftool.Exiftool) ([]*Illustration, error) {
	found := []*Illustration{}

	for _, d := range dirs {
		err := godirwalk.Walk(filepath.Join(root, d), &godirwalk.Options{
			Callback: func(path string, de *godirwalk.Dirent) error {
				base := filepath.Base(path)
				if base[0] == '.' || base == "_" {
					if de.IsDir() {
						return godirwalk.SkipThis
					}
					return nil
				}

				if de.IsDir() || !imageExts[strings.ToLower(filepath.Ext(path))] {
					return nil
				}

				rel, err := filepath.Rel(root, path)
				if err != nil {
					return err
				}
				url := "/" + filepath.ToSlash(rel)
				klog.V(1).Infof("found %s", url)

				il := &Illustration{ID: IDFor(url), ImageURL: url, InPath: path}
				if et != nil {
					if err := readExif(path, et, il); err != nil {
						klog.Warningf("metadata: %v", err)
					}
				}
				found = append(found, il)
				return nil
			},
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", d, err)
		}
	}

	return found, nil
}
