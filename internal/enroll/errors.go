package enroll

import "errors"

var (
	// ErrNoImages is returned when the dataset holds no supported image.
	ErrNoImages = errors.New("no images in dataset")
	// ErrNoFaces is returned when no image produced a face.
	ErrNoFaces = errors.New("no faces enrolled")
	// ErrDataset wraps failures to read the dataset directory.
	ErrDataset = errors.New("dataset unreadable")
)
