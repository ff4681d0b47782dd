// Package registry owns the on-disk state of a test suite: which directories
// are tests, each test's persisted record (test_info.json) and the
// suite-wide ignore list. All other packages receive these as plain values;
// nothing here is global.
//
// A suite looks like:
//
//	tests/
//	  ignored_dependencies.json
//	  group_of_related_tests/
//	    test_1/
//	      src/
//	      obj/
//	      bin/
//	      autotest.json
//	      test_info.json
//	      makefile
//	  test_2/
//	  ...
package registry
