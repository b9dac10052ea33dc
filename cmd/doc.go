// Package cmd contains the command-line interface of registry-cleaner.
//
// Key components:
//   - rootCmd: Confirms the filters, then runs the cleanup once or on a schedule.
//   - list: Prints the images the filters select without deleting anything.
//
// Usage examples:
//   - Preview a cleanup:
//     registry-cleaner --registry-url https://registry.example.com --images-filter '^team/' --tags-filter '^0\.'
//   - Delete for real every night:
//     registry-cleaner -r https://registry.example.com --dry-run no --force yes --schedule '0 0 3 * * *'
package cmd
