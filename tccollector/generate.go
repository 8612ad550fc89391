package tccollector

// probe.o is written to the module root, where `go build` leaves the
// binary; utility.ResolveObject looks for it next to the executable.
//go:generate clang -O2 -g -Wall -target bpf -I/usr/include/x86_64-linux-gnu -c ../bpf/probe.c -o ../probe.o
