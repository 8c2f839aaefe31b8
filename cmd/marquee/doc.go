// Command marquee is the operator CLI for the marquee daemon. It talks to
// marqueed over the local HTTP API and renders tables for terminals or JSON
// for scripts.
package main
