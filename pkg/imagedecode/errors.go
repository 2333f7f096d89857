package imagedecode

import "errors"

var errUnsupportedFormat = errors.New("imagedecode: unsupported or unrecognized image format")
