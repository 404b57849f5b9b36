// Package imaging provides the pixel plumbing used by the document scanner.
//
// It covers decoding stills (with EXIF auto-orientation), Canny edge maps for
// border detection, perspective warping for rectification, encoding of
// rectified pages and a preview overlay that draws the detected quadrilateral.
// All operations work with standard Go image.Image types and use a coordinate
// system where (0,0) is at the top-left corner, X increases rightward, and Y
// increases downward.
//
// # Coordinate System
//
// Pixel coordinates are 0-based and a pixel's centre sits at (x+0.5, y+0.5).
// Homographies passed to Warp operate on these continuous coordinates, so a
// normalized corner (u, v) of a w x h image maps to pixel position (u*w, v*h).
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Other functions are
// stateless and never modify their input images.
//
// # Libraries
//
// Decoding, resizing and encoding go through github.com/disintegration/imaging.
// Grayscale conversion and blurring use github.com/anthonynsimon/bild. WebP, BMP
// and TIFF decoders plus the label font come from golang.org/x/image.
package imaging
