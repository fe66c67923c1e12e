// Package packages models an epic package and its dependencies.
//
// A package is a folder of C/C++ sources with an optional package.json:
//
//	{
//	    "name": "hello",
//	    "dependencies": {"org.example.zlib": "^1.2"},
//	    "defines": {"USE_ZLIB": true},
//	    "options": {"compile": ["-Wall"]}
//	}
//
// Dependencies are resolved against a local Repository laid out as
// <root>/<identifier>/<version>/ where the first version folder by name wins.
// Each resolved folder is an include directory, and its static library is
// expected at <version>/lib/<arch>-<variant>/<last segment of identifier>.lib.
package packages
