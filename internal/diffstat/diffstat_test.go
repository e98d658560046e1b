package diffstat

import "testing"

func TestFromFiles(t *testing.T) {
	t.Parallel()

	files := []FileStat{
		{Filename: "a.go", Additions: 3, Deletions: 1, Changes: 4},
		{Filename: "b.go", Additions: 0, Deletions: 2, Changes: 2},
	}

	testCases := []struct {
		name   string
		policy ChangesPolicy
		want   Stats
	}{
		{
			name:   "changes_computed_from_files",
			policy: ChangesFromFiles,
			want:   Stats{Additions: 3, Deletions: 3, Changes: 6, FilesCount: 2},
		},
		{
			name:   "changes_not_reported_stays_zero",
			policy: ChangesNotReported,
			want:   Stats{Additions: 3, Deletions: 3, Changes: 0, FilesCount: 2},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FromFiles(files, tc.policy); got != tc.want {
				t.Fatalf("FromFiles = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestFromFilesEmpty(t *testing.T) {
	t.Parallel()

	if got := FromFiles(nil, ChangesFromFiles); got != (Stats{}) {
		t.Fatalf("FromFiles(nil) = %+v, want zero stats", got)
	}
}

func TestFromAggregate(t *testing.T) {
	t.Parallel()

	want := Stats{Additions: 10, Deletions: 4, Changes: 14, FilesCount: 3}
	if got := FromAggregate(10, 4, 14, 3); got != want {
		t.Fatalf("FromAggregate = %+v, want %+v", got, want)
	}
}

func TestParseUnifiedDiff(t *testing.T) {
	t.Parallel()

	diff := `--- a/main.c
+++ b/main.c
@@ -1,4 +1,5 @@
 #include <stdio.h>
+#include <stdlib.h>
 int main(void) {
-    return 1;
+    int code = 0;
+    return code;
 }
`

	stat, err := ParseUnifiedDiff("main.c", diff)
	if err != nil {
		t.Fatalf("ParseUnifiedDiff returned error: %v", err)
	}
	want := FileStat{Filename: "main.c", Additions: 3, Deletions: 1, Changes: 4}
	if stat != want {
		t.Fatalf("ParseUnifiedDiff = %+v, want %+v", stat, want)
	}
}

func TestParseUnifiedDiffEmpty(t *testing.T) {
	t.Parallel()

	stat, err := ParseUnifiedDiff("empty.txt", "   ")
	if err != nil {
		t.Fatalf("empty diff should not error: %v", err)
	}
	if stat != (FileStat{Filename: "empty.txt"}) {
		t.Fatalf("empty diff stats = %+v, want zeroed", stat)
	}
}

func TestParseUnifiedDiffMalformed(t *testing.T) {
	t.Parallel()

	stat, err := ParseUnifiedDiff("weird.bin", "+added line without any hunk header")
	if err == nil {
		t.Fatal("malformed diff should report an error")
	}
	if stat != (FileStat{Filename: "weird.bin"}) {
		t.Fatalf("malformed diff stats = %+v, want zeroed with filename", stat)
	}
}
