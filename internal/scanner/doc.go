// Package scanner discovers snippet candidates in a raw detection output
// tree. It validates each candidate's frame source, reports malformed entries
// as skips instead of failing the scan, and hands snippets off in a
// deterministic order so reruns behave identically.
package scanner
